package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skylink/internal/cache"
	"github.com/ppiankov/skylink/internal/export"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/pipeline"
	"github.com/ppiankov/skylink/internal/store"
)

var asJSON bool

// showCmd groups the stored-link lookups.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Look up stored links for one observation or image",
}

var showObsCmd = &cobra.Command{
	Use:   "obs <observation-id>",
	Short: "Show the image linked to an observation",
	Long: `Show the image an observation is linked to: its same-date image when
there is one, otherwise its best fuzzy match.

Observation ids have the form <neo_id>@<date>, e.g. 3542519@2025-12-01.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			m, err := st.ImageForObservation(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			printObservationMatch(cmd.OutOrStdout(), m)
			return nil
		})
	},
}

var showImageCmd = &cobra.Command{
	Use:   "image <image-id>",
	Short: "Show the observations linked to an image",
	Long: `Show every observation linked to an image by date or by text
similarity, highest score first. Image ids have the form apod-YYYY-MM-DD.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			img, err := st.Image(ctx, args[0])
			if err != nil {
				return err
			}
			matches, err := st.ObservationsForImage(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"image": img, "observations": matches})
			}
			printImageMatches(cmd.OutOrStdout(), img, matches)
			return nil
		})
	},
}

var runsLimit int

// summaryCmd represents the summary command
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show join statistics for everything in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			sum, err := st.Summary(ctx)
			if err != nil {
				return err
			}
			runs, err := st.Runs(ctx, runsLimit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"summary": sum, "runs": runs})
			}
			printSummary(cmd.OutOrStdout(), sum, runs)
			return nil
		})
	},
}

var (
	exportRange  rangeFlags
	exportReport string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write export files from the store or a saved report",
	Long: `Export relinks the stored records for a range (default: every stored
day) and writes the configured formats. With --report it converts a saved
report.json instead, without touching the store.

Example:
  skylink export --formats parquet,html
  skylink export --report out/report.json --formats html --output-dir site`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var pruneOlderThan time.Duration

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete superseded runs and expired cached responses",
	Long: `Prune deletes old runs whose links were replaced by later runs, then
sweeps expired NASA responses from the disk cache.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			n, err := st.Prune(ctx, pruneOlderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d runs\n", n)

			if p, ok := cache.New(appCfg.Cache).(cache.Pruner); ok {
				files, err := p.Prune(time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d expired cache files\n", files)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(showCmd, summaryCmd, exportCmd, pruneCmd)
	showCmd.AddCommand(showObsCmd, showImageCmd)

	for _, c := range []*cobra.Command{showObsCmd, showImageCmd, summaryCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	}
	summaryCmd.Flags().IntVar(&runsLimit, "runs", 5, "number of recent runs to list (0 = all)")

	exportRange.register(exportCmd)
	exportCmd.Flags().StringVar(&exportReport, "report", "", "saved report.json to convert")

	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "only prune runs older than this")
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *store.Store) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(cmd.Context(), st)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportReport != "" {
		report, err := readReport(exportReport)
		if err != nil {
			return err
		}
		exporter, err := export.New(appCfg.Output, logger)
		if err != nil {
			return err
		}
		paths, err := exporter.Write(report)
		printReport(cmd, report, paths)
		return err
	}

	return withStore(cmd, func(ctx context.Context, st *store.Store) error {
		r, err := rangeOrBounds(ctx, st, &exportRange)
		if err != nil {
			return err
		}
		// Relinking is deterministic, so this reproduces the stored links.
		cfg := *appCfg
		cfg.LLM.Provider = ""
		p := pipeline.New(&cfg, pipeline.Deps{Store: st}, logger)
		report, err := p.Link(ctx, r)
		if err != nil {
			return err
		}
		paths, err := p.Export(report, "")
		printReport(cmd, report, paths)
		return err
	})
}

func readReport(path string) (*model.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()
	return export.ReadJSON(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printObservationMatch(w io.Writer, m *store.ObservationMatch) {
	o := m.Observation
	rows := [][]string{
		{"Observation", o.ID},
		{"Name", o.Name},
		{"Date", o.Date.String()},
		{"Hazardous", strconv.FormatBool(o.Hazardous)},
	}
	if o.Size != nil {
		rows = append(rows, []string{"Diameter", fmt.Sprintf("%.3f to %.3f km", o.Size.MinKM, o.Size.MaxKM)})
	}
	rows = append(rows, []string{"Match", string(m.Type)})
	if m.Image != nil {
		rows = append(rows,
			[]string{"Score", strconv.FormatFloat(m.Score, 'f', 3, 64)},
			[]string{"Image", m.Image.ID},
			[]string{"Title", m.Image.Title},
			[]string{"Image date", m.Image.Date.String()},
			[]string{"URL", m.Image.MediaURL},
		)
	}
	fmt.Fprintln(w, export.Table([]string{"Field", "Value"}, rows))
}

func printImageMatches(w io.Writer, img *model.ImageRecord, matches []store.ImageMatch) {
	fmt.Fprintf(w, "%s  %s  %s\n", img.ID, img.Date, img.Title)
	if len(matches) == 0 {
		fmt.Fprintln(w, "No linked observations.")
		return
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.Observation.ID,
			m.Observation.Name,
			m.Observation.Date.String(),
			string(m.Type),
			strconv.FormatFloat(m.Score, 'f', 3, 64),
			strconv.Itoa(m.Rank),
		})
	}
	fmt.Fprintln(w, export.Table([]string{"Observation", "Name", "Date", "Match", "Score", "Rank"}, rows, 4, 5))
}

func printSummary(w io.Writer, sum *store.Summary, runs []store.RunInfo) {
	rows := [][]string{
		{"Observations", strconv.Itoa(sum.Observations)},
		{"Images", strconv.Itoa(sum.Images)},
		{"Date joins", strconv.Itoa(sum.DateJoins)},
		{"Fuzzy joins", strconv.Itoa(sum.FuzzyJoins)},
		{"Unique linked images", strconv.Itoa(sum.UniqueLinkedImages)},
		{"Runs", strconv.Itoa(sum.Runs)},
	}
	if sum.From != "" {
		rows = append(rows, []string{"Date range", fmt.Sprintf("%s to %s", sum.From, sum.To)})
	}
	if sum.TopImage != nil {
		rows = append(rows, []string{"Most linked image", fmt.Sprintf("%s %q (%d)", sum.TopImage.ImageID, sum.TopImage.Title, sum.TopImage.Links)})
	}
	fmt.Fprintln(w, export.Table([]string{"Measure", "Value"}, rows, 1))

	if len(runs) == 0 {
		return
	}
	runRows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rng := ""
		if r.Range != nil {
			rng = r.Range.String()
		}
		runRows = append(runRows, []string{
			r.ID[:min(8, len(r.ID))],
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			rng,
			strconv.Itoa(r.Stats.Observations),
			strconv.Itoa(r.Stats.ExactLinks),
			strconv.Itoa(r.Stats.FuzzyMatched),
			strconv.Itoa(r.Stats.Unmatched),
		})
	}
	fmt.Fprintln(w, export.Table([]string{"Run", "Created", "Range", "Observations", "Exact", "Fuzzy", "Unmatched"}, runRows, 3, 4, 5, 6))
}
