// Package export writes linkage reports to disk in the configured formats.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/skylink/internal/llm"
	"github.com/ppiankov/skylink/internal/model"
)

// Output file names.
const (
	FileReportJSON   = "report.json"
	FileReportMD     = "report.md"
	FileMatchedCSV   = "neo_apod_matched.csv"
	FileCandidateCSV = "neo_item_apod_map.csv"
	FileObsCSV       = "observations.csv"
	FileParquet      = "linkage.parquet"
	FileHTML         = "index.html"
	FileLLMMarkdown  = "llm_summary.md"
)

// Formats lists every supported format name.
var Formats = []string{"json", "md", "csv", "parquet", "html"}

// Exporter writes reports into one output directory.
type Exporter struct {
	dir     string
	formats map[string]bool
	logger  *slog.Logger
}

// New creates an exporter. Unknown format names are an error.
func New(cfg model.OutputConfig, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	formats := make(map[string]bool, len(cfg.Formats))
	for _, f := range cfg.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !isKnownFormat(f) {
			return nil, &model.ConfigError{
				Field:  "output.formats",
				Value:  f,
				Reason: "supported formats are " + strings.Join(Formats, ", "),
			}
		}
		formats[f] = true
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return &Exporter{dir: dir, formats: formats, logger: logger}, nil
}

func isKnownFormat(f string) bool {
	for _, k := range Formats {
		if k == f {
			return true
		}
	}
	return false
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Write renders report in every enabled format and returns the written paths.
func (e *Exporter) Write(report *model.Report) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	type target struct {
		format string
		name   string
		write  func(io.Writer) error
	}
	targets := []target{
		{"json", FileReportJSON, func(w io.Writer) error { return WriteJSON(w, report) }},
		{"md", FileReportMD, func(w io.Writer) error { return WriteMarkdown(w, report) }},
		{"csv", FileMatchedCSV, func(w io.Writer) error { return WriteMatchedCSV(w, &report.Linkage) }},
		{"csv", FileCandidateCSV, func(w io.Writer) error { return WriteCandidateCSV(w, &report.Linkage) }},
		{"csv", FileObsCSV, func(w io.Writer) error { return WriteObservationsCSV(w, &report.Linkage) }},
		{"parquet", FileParquet, func(w io.Writer) error { return WriteParquet(w, &report.Linkage) }},
		{"html", FileHTML, func(w io.Writer) error { return WriteHTML(w, report) }},
	}

	var written []string
	for _, t := range targets {
		if !e.formats[t.format] {
			continue
		}
		path := filepath.Join(e.dir, t.name)
		if err := writeFile(path, t.write); err != nil {
			return written, fmt.Errorf("write %s: %w", t.name, err)
		}
		e.logger.Debug("wrote output", "format", t.format, "path", path)
		written = append(written, path)
	}

	// The narrative lives in its own file so it is never mistaken for
	// linkage output.
	if md := llm.RenderSeparateMarkdown(report.LLM); md != "" {
		path := filepath.Join(e.dir, FileLLMMarkdown)
		if err := writeFile(path, func(w io.Writer) error {
			_, err := io.WriteString(w, md)
			return err
		}); err != nil {
			e.logger.Warn("failed to write LLM summary", "path", path, "error", err)
		} else {
			written = append(written, path)
		}
	}

	return written, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
