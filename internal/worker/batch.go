package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// RangeRunner links one date range end to end.
type RangeRunner interface {
	RunRange(ctx context.Context, r model.DateRange) (*model.Report, error)
}

// RangeResult is the outcome of one range.
type RangeResult struct {
	Range  model.DateRange
	Report *model.Report
	Error  error
}

// BatchProcessor runs many date ranges concurrently
type BatchProcessor struct {
	runner      RangeRunner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner RangeRunner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessRanges runs every range and returns results in input order.
// Ranges dropped because ctx was cancelled are reported with ctx's error.
func (b *BatchProcessor) ProcessRanges(ctx context.Context, ranges []model.DateRange) []*RangeResult {
	if len(ranges) == 0 {
		return []*RangeResult{}
	}

	pool := NewPool[*RangeResult](ctx, b.concurrency)
	pool.Start()

	for _, r := range ranges {
		pool.Submit(func(ctx context.Context) *RangeResult {
			report, err := b.runner.RunRange(ctx, r)
			return &RangeResult{Range: r, Report: report, Error: err}
		})
	}

	out, err := pool.Wait()
	for i, rr := range out {
		if rr == nil {
			out[i] = &RangeResult{Range: ranges[i], Error: err}
		}
	}
	return out
}

// ProcessFile reads ranges from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*RangeResult, error) {
	ranges, err := ReadRangesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read ranges: %w", err)
	}

	return b.ProcessRanges(ctx, ranges), nil
}

// ReadRangesFromFile reads one date range per line. A line holds either a
// single date or two dates separated by whitespace, a comma or "..".
// Blank lines and # comments are skipped; repeated ranges are dropped.
func ReadRangesFromFile(filePath string) ([]model.DateRange, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ranges []model.DateRange
	seen := make(map[model.DateRange]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r, err := ParseRange(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !seen[r] {
			seen[r] = true
			ranges = append(ranges, r)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ranges, nil
}

// ParseRange parses "FROM..TO", "FROM TO", "FROM,TO" or a single date.
func ParseRange(s string) (model.DateRange, error) {
	s = strings.ReplaceAll(s, "..", " ")
	s = strings.ReplaceAll(s, ",", " ")
	fields := strings.Fields(s)

	switch len(fields) {
	case 1:
		return model.NewDateRange(fields[0], fields[0])
	case 2:
		return model.NewDateRange(fields[0], fields[1])
	default:
		return model.DateRange{}, fmt.Errorf("expected one or two dates, got %q", s)
	}
}
