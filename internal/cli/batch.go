package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skylink/internal/export"
	"github.com/ppiankov/skylink/internal/pipeline"
	"github.com/ppiankov/skylink/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fetch, link and export many date ranges from a file in parallel",
	Long: `Batch runs fetch, link and export for every date range listed in a file,
one range per line, as "FROM..TO", "FROM TO", "FROM,TO" or a single day.
Blank lines and # comments are skipped.

Each range is exported into its own FROM_TO directory below the output dir.

Example:
  skylink batch ranges.txt
  skylink batch ranges.txt --concurrency 2 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Ranges share one store and one NASA rate limit, so the default stays low.
	batchCmd.Flags().IntVar(&concurrency, "concurrency", min(runtime.NumCPU(), 4), "number of ranges processed at once")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  skylink batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", appCfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if appCfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", appCfg.LLM.Provider, appCfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	p, err := pipeline.NewFromConfig(appCfg, st, logger)
	if err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(p, concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	rows := make([][]string, 0, len(results))
	failures := 0
	for _, res := range results {
		if res.Error != nil {
			failures++
			logger.Error("range failed", "range", res.Range.String(), "error", res.Error)
			rows = append(rows, []string{res.Range.String(), "failed: " + res.Error.Error()})
			continue
		}
		s := res.Report.Linkage.Stats
		rows = append(rows, []string{
			res.Range.String(), "ok",
			strconv.Itoa(s.Observations),
			strconv.Itoa(s.ExactLinks),
			strconv.Itoa(s.FuzzyMatched),
			strconv.Itoa(s.Unmatched),
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), export.Table(
		[]string{"Range", "Status", "Observations", "Exact", "Fuzzy", "Unmatched"},
		rows, 2, 3, 4, 5,
	))
	fmt.Fprintf(cmd.OutOrStdout(), "%d ranges, %d failed, output in %s\n", len(results), failures, appCfg.Output.Dir)

	if failures > 0 {
		return fmt.Errorf("%d of %d ranges failed", failures, len(results))
	}
	return nil
}
