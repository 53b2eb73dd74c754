package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// WriteMarkdown writes a human-readable report.
func WriteMarkdown(w io.Writer, report *model.Report) error {
	l := &report.Linkage
	c := report.Coverage

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", report.Subject)
	fmt.Fprintf(&b, "_Generated %s. Threshold %.2f, top %d._\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), l.Threshold, l.TopK)

	b.WriteString("## Coverage\n\n")
	b.WriteString("| Measure | Count | Share |\n|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Observations | %d | |\n", l.Stats.Observations)
	fmt.Fprintf(&b, "| Images | %d | |\n", l.Stats.Images)
	fmt.Fprintf(&b, "| Exact date links | %d | %.1f%% |\n", l.Stats.ExactLinks, c.ExactRatio*100)
	fmt.Fprintf(&b, "| Fuzzy matches | %d | %.1f%% |\n", l.Stats.FuzzyMatched, c.FuzzyRatio*100)
	fmt.Fprintf(&b, "| Unmatched | %d | %.1f%% |\n", l.Stats.Unmatched, c.UnmatchedRatio*100)
	fmt.Fprintf(&b, "| Malformed (skipped) | %d | |\n\n", l.Stats.Malformed)

	if len(c.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range c.Signals {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", s.Type, s.Severity, s.Description)
		}
		b.WriteString("\n")
	}

	if len(report.Daily) > 0 {
		b.WriteString("## Daily objects\n\n")
		b.WriteString("| Date | Objects | Hazardous | Smallest | Largest | Image |\n|---|---:|---:|---:|---:|---|\n")
		for _, d := range report.Daily {
			img := ""
			if d.ImageID != nil {
				img = *d.ImageID
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s |\n", d.Date, d.Count, d.Hazardous, formatKM(d.SmallestKM), formatKM(d.LargestKM), img)
		}
		b.WriteString("\n")
	}

	if len(l.Unmatched) > 0 {
		fmt.Fprintf(&b, "## Unmatched observations (%d)\n\n", len(l.Unmatched))
		for _, id := range l.Unmatched {
			fmt.Fprintf(&b, "- %s\n", id)
		}
		b.WriteString("\n")
	}

	if len(l.Notes) > 0 {
		b.WriteString("## Notes\n\n")
		for _, n := range l.Notes {
			fmt.Fprintf(&b, "- [%s] %s\n", n.Kind, n.Message)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
