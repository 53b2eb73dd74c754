package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skylink/internal/export"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/pipeline"
	"github.com/ppiankov/skylink/internal/store"
)

// rangeFlags selects the days a command works on.
type rangeFlags struct {
	from string
	to   string
	days int
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD (default: --days before --to)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day, YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().IntVar(&f.days, "days", 7, "number of days when --from is not set")
}

// resolve turns the flags into an inclusive range relative to today.
func (f *rangeFlags) resolve(today model.Day) (model.DateRange, error) {
	to := today
	if f.to != "" {
		d, err := model.ParseDay(f.to)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("--to: %w", err)
		}
		to = d
	}
	if f.from != "" {
		return model.NewDateRange(f.from, to.String())
	}
	if f.days < 1 {
		return model.DateRange{}, fmt.Errorf("--days must be at least 1")
	}
	return model.DateRange{From: to.AddDays(-(f.days - 1)), To: to}, nil
}

var (
	fetchRange  rangeFlags
	linkRange   rangeFlags
	runRange    rangeFlags
	incremental bool
	cmdTimeout  time.Duration
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download APOD images and NEO observations into the store",
	Long: `Fetch downloads the Astronomy Pictures of the Day and the near-Earth
object feed for a date range and upserts them into the SQLite store.

Example:
  skylink fetch --days 7
  skylink fetch --from 2025-12-01 --to 2025-12-31
  skylink fetch --incremental`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link stored observations to images and export the result",
	Long: `Link runs the linkage engine over the records already in the store:
exact calendar-date links first, then token-overlap matching for the
observations left without a same-day image.

Example:
  skylink link --from 2025-12-01 --to 2025-12-07
  skylink link --days 30 --formats json,csv,html`,
	Args: cobra.NoArgs,
	RunE: runLink,
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, link and export a date range",
	Long: `Run is fetch followed by link: it downloads the range, links it and
writes the configured export formats.

Example:
  skylink run
  skylink run --from 2025-12-01 --to 2025-12-07 --llm openai`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(fetchCmd, linkCmd, runCmd)

	fetchRange.register(fetchCmd)
	linkRange.register(linkCmd)
	runRange.register(runCmd)

	for _, c := range []*cobra.Command{fetchCmd, runCmd} {
		c.Flags().BoolVar(&incremental, "incremental", false, "start after the newest stored observation")
	}
	for _, c := range []*cobra.Command{fetchCmd, linkCmd, runCmd} {
		c.Flags().DurationVar(&cmdTimeout, "timeout", 10*time.Minute, "overall timeout")
	}
}

// withPipeline opens the store, builds the pipeline and runs fn.
func withPipeline(cmd *cobra.Command, fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	p, err := pipeline.NewFromConfig(appCfg, st, logger)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

func runFetch(cmd *cobra.Command, args []string) error {
	r, err := fetchRange.resolve(model.Today())
	if err != nil {
		return err
	}
	return withPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
		res, err := p.Fetch(ctx, r, incremental)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		out := cmd.OutOrStdout()
		if res.UpToDate {
			fmt.Fprintf(out, "✓ Store already holds %s\n", r)
			return nil
		}
		fmt.Fprintf(out, "✓ Fetched %s: %d images, %d observations", res.Range, res.Images, res.Observations)
		if res.Orbits > 0 {
			fmt.Fprintf(out, ", %d orbits", res.Orbits)
		}
		fmt.Fprintln(out)
		return nil
	})
}

func runLink(cmd *cobra.Command, args []string) error {
	r, err := linkRange.resolve(model.Today())
	if err != nil {
		return err
	}
	return withPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
		report, err := p.Link(ctx, r)
		if err != nil {
			return fmt.Errorf("link failed: %w", err)
		}
		paths, err := p.Export(report, "")
		printReport(cmd, report, paths)
		return err
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	r, err := runRange.resolve(model.Today())
	if err != nil {
		return err
	}
	return withPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline) error {
		report, paths, err := p.Run(ctx, r, incremental)
		if report != nil {
			printReport(cmd, report, paths)
		}
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		return nil
	})
}

func printReport(cmd *cobra.Command, report *model.Report, paths []string) {
	out := cmd.OutOrStdout()
	export.RenderSummary(out, report)
	if report.LLM != nil && report.LLM.Enabled && verbose {
		fmt.Fprintf(os.Stderr, "✓ Generated LLM summary using %s/%s\n", report.LLM.Provider, report.LLM.Model)
	}
	for _, p := range paths {
		fmt.Fprintf(out, "✓ Wrote %s\n", p)
	}
}

// rangeOrBounds uses the flags when set, else everything in the store.
func rangeOrBounds(ctx context.Context, st *store.Store, f *rangeFlags) (model.DateRange, error) {
	if f.from != "" || f.to != "" {
		return f.resolve(model.Today())
	}
	from, to, ok, err := st.DateBounds(ctx)
	if err != nil {
		return model.DateRange{}, err
	}
	if !ok {
		return model.DateRange{}, fmt.Errorf("store is empty; run 'skylink fetch' first")
	}
	return model.DateRange{From: from, To: to}, nil
}
