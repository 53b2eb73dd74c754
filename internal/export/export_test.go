package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

func strPtr(s string) *string { return &s }

func testReport() *model.Report {
	return &model.Report{
		Subject:     "APOD ↔ NEO linkage 2025-12-01..2025-12-02",
		GeneratedAt: time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC),
		Linkage: model.Linkage{
			Threshold: 0.15,
			TopK:      3,
			Images: []model.ImageRecord{
				{ID: "apod-2025-12-01", Date: "2025-12-01", Title: "Comet Lemmon", MediaURL: "https://apod.nasa.gov/a.jpg", MediaType: "image"},
				{ID: "apod-2025-12-02", Date: "2025-12-02", Title: "Orion <Deep> Field", MediaURL: "https://apod.nasa.gov/b.jpg", MediaType: "image", Copyright: "A. Person"},
			},
			Observations: []model.ObservationRecord{
				{ID: "1@2025-12-01", NeoID: "1", Date: "2025-12-01", Name: "(2025 AB)", Size: &model.SizeRange{MinKM: 0.1, MaxKM: 0.2}, LinkedImageID: strPtr("apod-2025-12-01")},
				{ID: "2@2025-12-03", NeoID: "2", Date: "2025-12-03", Name: "Lemmon", Hazardous: true,
					Approach: &model.Approach{VelocityKPS: 12.5, MissDistanceKM: 123456}},
				{ID: "3@2025-12-03", NeoID: "3", Date: "2025-12-03", Name: "(2025 XY)"},
			},
			Views: []model.LinkageView{
				{ObservationID: "1@2025-12-01", ImageID: strPtr("apod-2025-12-01"), Score: 1, Type: model.MatchExactDate},
				{ObservationID: "2@2025-12-03", ImageID: strPtr("apod-2025-12-01"), Score: 0.25, Type: model.MatchFuzzy,
					Alternatives: []model.MatchCandidate{{ObservationID: "2@2025-12-03", ImageID: "apod-2025-12-02", Score: 0.2, Type: model.MatchFuzzy, Rank: 2}}},
				{ObservationID: "3@2025-12-03", Type: model.MatchNone},
			},
			Candidates: []model.MatchCandidate{
				{ObservationID: "1@2025-12-01", ImageID: "apod-2025-12-01", Score: 1, Type: model.MatchExactDate, Rank: 1},
				{ObservationID: "1@2025-12-01", ImageID: "apod-2025-12-02", Score: 0.3, Type: model.MatchFuzzy, Rank: 1},
				{ObservationID: "2@2025-12-03", ImageID: "apod-2025-12-01", Score: 0.25, Type: model.MatchFuzzy, Rank: 1},
				{ObservationID: "2@2025-12-03", ImageID: "apod-2025-12-02", Score: 0.2, Type: model.MatchFuzzy, Rank: 2},
			},
			Unmatched: []string{"3@2025-12-03"},
			Stats:     model.LinkageStats{Observations: 3, Images: 2, ExactLinks: 1, FuzzyMatched: 1, Unmatched: 1},
		},
		Coverage: model.Coverage{ExactRatio: 1.0 / 3, FuzzyRatio: 1.0 / 3, UnmatchedRatio: 1.0 / 3},
		Daily: []model.DailySummary{
			{Date: "2025-12-01", Count: 1, SmallestKM: 0.1, LargestKM: 0.2, ImageID: strPtr("apod-2025-12-01")},
			{Date: "2025-12-03", Count: 2, Hazardous: 1},
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestWriteMatchedCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMatchedCSV(&buf, &testReport().Linkage); err != nil {
		t.Fatalf("WriteMatchedCSV: %v", err)
	}
	records := readCSV(t, buf.Bytes())

	// header + exact + fuzzy primary + one alternative
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d: %v", len(records), records)
	}
	if strings.Join(records[0], ",") != strings.Join(matchedHeader, ",") {
		t.Errorf("unexpected header %v", records[0])
	}
	exact := records[1]
	if exact[0] != "1@2025-12-01" || exact[7] != "apod-2025-12-01" || exact[11] != "exact_date" || exact[12] != "1.000" {
		t.Errorf("unexpected exact row %v", exact)
	}
	if exact[4] != "0.100000" || exact[5] != "0.200000" {
		t.Errorf("unexpected size columns %v", exact[4:6])
	}
	if alt := records[3]; alt[7] != "apod-2025-12-02" || alt[13] != "2" || alt[12] != "0.200" {
		t.Errorf("unexpected alternative row %v", alt)
	}
}

func TestWriteCandidateCSV_IncludesHiddenFuzzy(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCandidateCSV(&buf, &testReport().Linkage); err != nil {
		t.Fatalf("WriteCandidateCSV: %v", err)
	}
	records := readCSV(t, buf.Bytes())
	if len(records) != 5 {
		t.Fatalf("expected header + 4 candidates, got %d", len(records))
	}
	if records[2][0] != "1@2025-12-01" || records[2][2] != "fuzzy" || records[2][4] != "0.300" {
		t.Errorf("expected hidden fuzzy row, got %v", records[2])
	}
}

func TestWriteObservationsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteObservationsCSV(&buf, &testReport().Linkage); err != nil {
		t.Fatalf("WriteObservationsCSV: %v", err)
	}
	records := readCSV(t, buf.Bytes())
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[1][10] != "apod-2025-12-01" {
		t.Errorf("expected linked image id, got %q", records[1][10])
	}
	if records[2][6] != "true" || records[2][8] != "12.500" || records[2][9] != "123456" {
		t.Errorf("unexpected approach columns %v", records[2])
	}
	if records[3][4] != "" || records[3][10] != "" {
		t.Errorf("expected empty size and link for unsized observation, got %v", records[3])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	report := testReport()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, report); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"Orion <Deep> Field"`) {
		t.Error("expected HTML characters left unescaped")
	}
	back, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if back.Subject != report.Subject || len(back.Linkage.Views) != 3 || back.Linkage.Stats.ExactLinks != 1 {
		t.Errorf("report changed across JSON: %+v", back.Linkage.Stats)
	}
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileParquet)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteParquet(f, &testReport().Linkage); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	rows, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].ImageTitle != "Comet Lemmon" || rows[0].SizeMaxKM != 0.2 || rows[0].MatchType != "exact_date" {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].Alternatives != 1 || !rows[1].Hazardous {
		t.Errorf("unexpected fuzzy row %+v", rows[1])
	}
	if rows[2].ImageID != "" || rows[2].MatchType != "none" {
		t.Errorf("unexpected unmatched row %+v", rows[2])
	}
}

func TestWriteHTML(t *testing.T) {
	report := testReport()
	report.LLM = &model.LLMSummary{Enabled: true, SummaryMD: "Two <b>objects</b>."}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, report); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	page := buf.String()

	for _, want := range []string{
		"<h2>Orion &lt;Deep&gt; Field</h2>", // latest image, escaped
		`src="https://apod.nasa.gov/b.jpg"`,
		"Near-Earth objects on 2025-12-03",
		"Potentially hazardous: 1",
		"100 m to 200 m",
		`class="hazard"`,
		"Two &lt;b&gt;objects&lt;/b&gt;.",
		"33%",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, testReport()); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	md := buf.String()
	for _, want := range []string{"# APOD ↔ NEO linkage", "| Exact date links | 1 | 33.3% |", "## Unmatched observations (1)", "- 3@2025-12-03"} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in markdown", want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	report := testReport()
	report.Coverage.Signals = []model.Signal{
		{Severity: model.SeverityInfo, Description: "quiet"},
		{Severity: model.SeverityWarning, Description: "many unmatched"},
	}
	RenderSummary(&buf, report)
	out := buf.String()
	if !strings.Contains(out, "Exact date links") || !strings.Contains(out, "33.3%") {
		t.Errorf("expected coverage table, got %q", out)
	}
	if !strings.Contains(out, "warning: many unmatched") || strings.Contains(out, "quiet") {
		t.Errorf("expected only non-info signals, got %q", out)
	}
}

func TestExporter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e, err := New(model.OutputConfig{Dir: dir, Formats: []string{"json", "CSV", "parquet", "html", "md"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report := testReport()
	report.LLM = &model.LLMSummary{Enabled: true, Provider: "openai", SummaryMD: "text"}
	paths, err := e.Write(report)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := []string{FileReportJSON, FileReportMD, FileMatchedCSV, FileCandidateCSV, FileObsCSV, FileParquet, FileHTML, FileLLMMarkdown}
	if len(paths) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), paths)
	}
	for i, name := range want {
		if filepath.Base(paths[i]) != name {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], name)
		}
		if _, err := os.Stat(paths[i]); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestExporter_OnlySelectedFormats(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(model.OutputConfig{Dir: dir, Formats: []string{"json"}}, nil)
	paths, err := e.Write(testReport())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != FileReportJSON {
		t.Errorf("expected only report.json, got %v", paths)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(model.OutputConfig{Formats: []string{"xlsx"}}, nil)
	if !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestTable(t *testing.T) {
	out := Table([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"bb"}}, 1)
	// go-pretty upper-cases headers by default.
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "bb") || !strings.Contains(out, "╭") {
		t.Errorf("unexpected table %q", out)
	}
	if Table(nil, nil) != "" {
		t.Error("expected empty table without headers")
	}
}
