package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

// mockRunner implements RangeRunner
type mockRunner struct {
	mu      sync.Mutex
	calls   int
	failOn  model.Day
	perCall time.Duration
}

func (m *mockRunner) RunRange(ctx context.Context, r model.DateRange) (*model.Report, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	time.Sleep(m.perCall)
	if r.From == m.failOn {
		return nil, errors.New("fetch failed")
	}
	return &model.Report{Subject: r.String()}, nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ranges.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessRanges(t *testing.T) {
	runner := &mockRunner{perCall: 5 * time.Millisecond}
	processor := NewBatchProcessor(runner, 3)

	ranges := []model.DateRange{
		{From: "2025-12-01", To: "2025-12-07"},
		{From: "2025-12-08", To: "2025-12-14"},
		{From: "2025-12-15", To: "2025-12-21"},
		{From: "2025-12-22", To: "2025-12-28"},
	}

	results := processor.ProcessRanges(context.Background(), ranges)

	if len(results) != len(ranges) {
		t.Fatalf("expected %d results, got %d", len(ranges), len(results))
	}
	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Range, res.Error)
		}
		if res.Range != ranges[i] {
			t.Errorf("result %d out of order: %s", i, res.Range)
		}
		if res.Report == nil || res.Report.Subject != ranges[i].String() {
			t.Errorf("unexpected report for %s: %+v", ranges[i], res.Report)
		}
	}
}

func TestBatchProcessor_ProcessRanges_Error(t *testing.T) {
	runner := &mockRunner{failOn: "2025-12-08"}
	processor := NewBatchProcessor(runner, 2)

	results := processor.ProcessRanges(context.Background(), []model.DateRange{
		{From: "2025-12-01", To: "2025-12-07"},
		{From: "2025-12-08", To: "2025-12-14"},
	})

	if results[0].Error != nil {
		t.Errorf("expected first range to succeed, got %v", results[0].Error)
	}
	if results[1].Error == nil || results[1].Report != nil {
		t.Errorf("expected second range to fail without report, got %+v", results[1])
	}
}

func TestBatchProcessor_ProcessRanges_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockRunner{}, 2)

	if results := processor.ProcessRanges(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessRanges_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &mockRunner{}
	processor := NewBatchProcessor(runner, 2)

	results := processor.ProcessRanges(ctx, []model.DateRange{
		{From: "2025-12-01", To: "2025-12-01"},
		{From: "2025-12-02", To: "2025-12-02"},
	})

	if len(results) != 2 {
		t.Fatalf("expected a result per range, got %d", len(results))
	}
	for _, res := range results {
		if !errors.Is(res.Error, context.Canceled) {
			t.Errorf("expected context.Canceled for %s, got %v", res.Range, res.Error)
		}
	}
}

func TestReadRangesFromFile(t *testing.T) {
	path := writeTemp(t, `2025-12-01..2025-12-07
# comment
2025-12-08 2025-12-14

2025-12-15,2025-12-21
2025-12-25
2025-12-01..2025-12-07
`)

	ranges, err := ReadRangesFromFile(path)
	if err != nil {
		t.Fatalf("ReadRangesFromFile failed: %v", err)
	}

	expected := []model.DateRange{
		{From: "2025-12-01", To: "2025-12-07"},
		{From: "2025-12-08", To: "2025-12-14"},
		{From: "2025-12-15", To: "2025-12-21"},
		{From: "2025-12-25", To: "2025-12-25"},
	}
	if len(ranges) != len(expected) {
		t.Fatalf("expected %d ranges, got %d: %v", len(expected), len(ranges), ranges)
	}
	for i := range expected {
		if ranges[i] != expected[i] {
			t.Errorf("range %d = %s, want %s", i, ranges[i], expected[i])
		}
	}
}

func TestReadRangesFromFile_BadLine(t *testing.T) {
	path := writeTemp(t, "2025-12-01..2025-12-07\n2025-12-09..2025-12-02\n")

	if _, err := ReadRangesFromFile(path); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestReadRangesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadRangesFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeTemp(t, "2025-12-01\n2025-12-02\n# comment\n\n2025-12-03\n")

	processor := NewBatchProcessor(&mockRunner{}, 2)
	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2025-12-01", false},
		{"2025-12-01..2025-12-02", false},
		{"2025-12-01 2025-12-02 2025-12-03", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		if _, err := ParseRange(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("ParseRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
