// Package pipeline wires the feeds, the store, the linkage engine and the
// exporters into the fetch, link and run operations of the CLI.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ppiankov/skylink/internal/cache"
	"github.com/ppiankov/skylink/internal/export"
	"github.com/ppiankov/skylink/internal/feed"
	"github.com/ppiankov/skylink/internal/link"
	"github.com/ppiankov/skylink/internal/llm"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/score"
	"github.com/ppiankov/skylink/internal/store"
	"github.com/ppiankov/skylink/internal/validate"
)

// OrbitSource looks up orbital elements of one object.
type OrbitSource interface {
	Lookup(ctx context.Context, neoID string) (*model.OrbitalElements, error)
}

// MediaProber checks that image media URLs resolve.
type MediaProber interface {
	Check(ctx context.Context, images []model.ImageRecord) []model.MediaStatus
}

// Narrator writes the optional report narrative.
type Narrator interface {
	IsEnabled() bool
	GenerateSummary(ctx context.Context, report model.Report) (*model.LLMSummary, error)
}

// CacheReporter exposes response cache counters for the fetch log.
type CacheReporter interface {
	CacheStats() (cache.Stats, bool)
}

// Deps are the collaborators of a pipeline. Nil optional fields disable the
// matching step.
type Deps struct {
	Store        *store.Store
	Images       feed.ImageSource
	Observations feed.ObservationSource
	Orbits       OrbitSource   // optional
	Media        MediaProber   // optional
	Narrator     Narrator      // optional
	Cache        CacheReporter // optional
}

// Pipeline orchestrates fetch, link and export.
type Pipeline struct {
	cfg    *model.Config
	deps   Deps
	engine *link.Engine
	scorer *score.Scorer
	logger *slog.Logger
}

// New creates a pipeline from explicit collaborators.
func New(cfg *model.Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		engine: link.NewEngine(cfg.Linkage, logger),
		scorer: score.NewScorer(),
		logger: logger,
	}
}

// NewFromConfig wires the NASA feeds, the media checker and the optional
// narrator from cfg around an open store.
func NewFromConfig(cfg *model.Config, st *store.Store, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := feed.NewFetcherFromConfig(cfg, logger)
	neows := feed.NewNeoWsClient(fetcher, cfg.NASA.BaseURL, cfg.NASA.APIKey, cfg.NASA.PerDayLimit, cfg.NASA.FetchWorkers, logger)

	deps := Deps{Store: st, Observations: neows, Cache: fetcher}
	if cfg.NASA.UseArchive {
		deps.Images = feed.NewArchiveClient(fetcher, cfg.NASA.ArchiveURL, logger)
	} else {
		deps.Images = feed.NewAPODClient(fetcher, cfg.NASA.BaseURL, cfg.NASA.APIKey)
	}
	if cfg.NASA.WithOrbits {
		deps.Orbits = neows
	}
	if cfg.Output.CheckMedia {
		deps.Media = validate.NewMediaChecker(fetcher.Client(), cfg.NASA.FetchWorkers, fetcher.UserAgent())
	}

	if cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		if err != nil {
			// The narrative is optional; a bad provider never blocks linkage.
			logger.Warn("LLM provider disabled", "provider", cfg.LLM.Provider, "error", err)
		} else {
			deps.Narrator = s
		}
	}

	return New(cfg, deps, logger), nil
}

// FetchResult counts what a fetch stored.
type FetchResult struct {
	Range        model.DateRange
	Images       int
	Observations int
	Orbits       int
	UpToDate     bool
}

// Fetch downloads images and observations for r and upserts them. With
// incremental set, the range starts the day after the newest stored
// observation.
func (p *Pipeline) Fetch(ctx context.Context, r model.DateRange, incremental bool) (*FetchResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if p.deps.Store == nil {
		return nil, fmt.Errorf("fetch: no store")
	}

	if incremental {
		latest, ok, err := p.deps.Store.LatestObservationDate(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		if ok && !latest.Before(r.From) {
			r.From = latest.AddDays(1)
		}
		if r.To.Before(r.From) {
			p.logger.Info("store already up to date", "latest", latest)
			return &FetchResult{Range: r, UpToDate: true}, nil
		}
	}

	start := time.Now()
	res := &FetchResult{Range: r}

	if p.deps.Images != nil {
		images, err := p.deps.Images.Images(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("fetch images %s: %w", r, err)
		}
		if err := p.deps.Store.UpsertImages(ctx, images); err != nil {
			return nil, fmt.Errorf("store images: %w", err)
		}
		res.Images = len(images)
	}

	if p.deps.Observations != nil {
		observations, err := p.deps.Observations.Observations(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("fetch observations %s: %w", r, err)
		}
		if err := p.deps.Store.UpsertObservations(ctx, observations); err != nil {
			return nil, fmt.Errorf("store observations: %w", err)
		}
		res.Observations = len(observations)

		if p.deps.Orbits != nil {
			res.Orbits = p.fetchOrbits(ctx, observations)
		}
	}

	attrs := []any{
		"range", r.String(),
		"images", res.Images,
		"observations", res.Observations,
		"orbits", res.Orbits,
		"duration", time.Since(start),
	}
	if p.deps.Cache != nil {
		if s, ok := p.deps.Cache.CacheStats(); ok {
			attrs = append(attrs, "cache_hits", s.Hits(), "cache_misses", s.Misses)
		}
	}
	p.logger.Info("fetch complete", attrs...)
	return res, nil
}

// fetchOrbits stores elements for objects that have none yet. Lookup
// failures are logged and skipped.
func (p *Pipeline) fetchOrbits(ctx context.Context, observations []model.ObservationRecord) int {
	ids := make([]string, 0, len(observations))
	for _, o := range observations {
		ids = append(ids, o.NeoID)
	}
	missing, err := p.deps.Store.MissingOrbits(ctx, ids)
	if err != nil {
		p.logger.Warn("orbit lookup skipped", "error", err)
		return 0
	}

	saved := 0
	for _, id := range missing {
		if ctx.Err() != nil {
			break
		}
		el, err := p.deps.Orbits.Lookup(ctx, id)
		if err != nil {
			p.logger.Warn("orbit lookup failed", "neo_id", id, "error", err, "kind", model.ErrorKind(err))
			continue
		}
		if err := p.deps.Store.SaveOrbit(ctx, el); err != nil {
			p.logger.Warn("orbit save failed", "neo_id", id, "error", err)
			continue
		}
		saved++
	}
	return saved
}

// Link runs the engine over the stored records in r, persists the run and
// returns the report. Media checks and the narrative run after linkage and
// never change it.
func (p *Pipeline) Link(ctx context.Context, r model.DateRange) (*model.Report, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if p.deps.Store == nil {
		return nil, fmt.Errorf("link: no store")
	}

	images, err := p.deps.Store.ImagesInRange(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	observations, err := p.deps.Store.ObservationsInRange(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}

	result, err := p.engine.Run(ctx, observations, images)
	if err != nil {
		return nil, err
	}
	rng := r
	result.Range = &rng
	result.GeneratedAt = time.Now().UTC()

	report := &model.Report{
		Subject:     fmt.Sprintf("APOD ↔ NEO linkage %s", r),
		GeneratedAt: result.GeneratedAt,
		Daily:       score.DailySummaries(result.Observations),
	}

	if p.deps.Media != nil {
		report.Media = p.deps.Media.Check(ctx, result.Images)
		for _, n := range validate.MediaNotes(report.Media) {
			p.logger.Warn("image media unavailable", "image_id", n.RecordID, "reason", n.Message)
			result.Notes = append(result.Notes, n)
		}
	}

	report.Linkage = *result
	report.Coverage = p.scorer.Calculate(&report.Linkage)

	runID, err := p.deps.Store.SaveRun(ctx, &report.Linkage)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	p.logger.Info("linkage complete",
		"run_id", runID,
		"range", r.String(),
		"observations", report.Linkage.Stats.Observations,
		"images", report.Linkage.Stats.Images,
		"exact", report.Linkage.Stats.ExactLinks,
		"fuzzy", report.Linkage.Stats.FuzzyMatched,
		"unmatched", report.Linkage.Stats.Unmatched,
	)

	if p.deps.Narrator != nil && p.deps.Narrator.IsEnabled() {
		summary, err := p.deps.Narrator.GenerateSummary(ctx, *report)
		if err != nil {
			p.logger.Warn("LLM summary generation failed", "error", err)
		} else if summary != nil {
			report.LLM = summary
			for _, w := range summary.Warnings {
				p.logger.Debug("LLM summary", "note", w)
			}
		}
	}

	return report, nil
}

// Run fetches, links and exports r.
func (p *Pipeline) Run(ctx context.Context, r model.DateRange, incremental bool) (*model.Report, []string, error) {
	if _, err := p.Fetch(ctx, r, incremental); err != nil {
		return nil, nil, err
	}
	report, err := p.Link(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	paths, err := p.Export(report, "")
	if err != nil {
		return report, paths, err
	}
	return report, paths, nil
}

// RunRange implements worker.RangeRunner for batch runs. Each range exports
// into its own subdirectory of the output dir.
func (p *Pipeline) RunRange(ctx context.Context, r model.DateRange) (*model.Report, error) {
	if _, err := p.Fetch(ctx, r, false); err != nil {
		return nil, err
	}
	report, err := p.Link(ctx, r)
	if err != nil {
		return nil, err
	}
	if _, err := p.Export(report, rangeDirName(r)); err != nil {
		return report, err
	}
	return report, nil
}

// Export writes report in the configured formats, below subdir of the
// output dir when subdir is set.
func (p *Pipeline) Export(report *model.Report, subdir string) ([]string, error) {
	out := p.cfg.Output
	if subdir != "" {
		out.Dir = filepath.Join(out.Dir, subdir)
	}
	exporter, err := export.New(out, p.logger)
	if err != nil {
		return nil, err
	}
	paths, err := exporter.Write(report)
	if err != nil {
		return paths, fmt.Errorf("export: %w", err)
	}
	return paths, nil
}

func rangeDirName(r model.DateRange) string {
	return fmt.Sprintf("%s_%s", r.From, r.To)
}
