package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ppiankov/skylink/internal/model"
)

// Table renders rows with a rounded go-pretty style. Columns listed in
// rightAlign are right aligned.
func Table(headers []string, rows [][]string, rightAlign ...int) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAlign))
	for _, col := range rightAlign {
		configs = append(configs, table.ColumnConfig{Number: col + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// RenderSummary prints the coverage table of a report.
func RenderSummary(w io.Writer, report *model.Report) {
	l := &report.Linkage
	c := report.Coverage

	fmt.Fprintln(w, report.Subject)
	fmt.Fprintln(w, Table(
		[]string{"Measure", "Count", "Share"},
		[][]string{
			{"Observations", strconv.Itoa(l.Stats.Observations), ""},
			{"Images", strconv.Itoa(l.Stats.Images), ""},
			{"Exact date links", strconv.Itoa(l.Stats.ExactLinks), percent(c.ExactRatio)},
			{"Fuzzy matches", strconv.Itoa(l.Stats.FuzzyMatched), percent(c.FuzzyRatio)},
			{"Unmatched", strconv.Itoa(l.Stats.Unmatched), percent(c.UnmatchedRatio)},
			{"Malformed (skipped)", strconv.Itoa(l.Stats.Malformed), ""},
		},
		1, 2,
	))
	for _, s := range c.Signals {
		if s.Severity != model.SeverityInfo {
			fmt.Fprintf(w, "%s: %s\n", s.Severity, s.Description)
		}
	}
}

func percent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}
