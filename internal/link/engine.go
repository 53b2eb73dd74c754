package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/validate"
)

// Engine links observations to images. It holds configuration only; every
// Run builds a fresh result from its inputs.
type Engine struct {
	cfg    model.LinkageConfig
	logger *slog.Logger
}

// NewEngine creates an engine. Configuration is validated by Run.
func NewEngine(cfg model.LinkageConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Config returns the engine's linkage configuration.
func (e *Engine) Config() model.LinkageConfig {
	return e.cfg
}

// Run validates the configuration, drops malformed records with a warning
// note, links by date, ranks fuzzy candidates and reconciles both into one
// view per observation. It returns either the complete result or an error.
func (e *Engine) Run(ctx context.Context, observations []model.ObservationRecord, images []model.ImageRecord) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("linkage engine: %w", err)
	}

	start := time.Now()

	keptObs, keptImages, malformed := validate.Records(observations, images)
	for _, n := range malformed {
		e.logger.Warn("skipping malformed record", "record_id", n.RecordID, "reason", n.Message)
	}

	linked, duplicates := LinkByDate(keptObs, keptImages)
	for _, n := range duplicates {
		e.logger.Info("duplicate image date", "date", n.RecordID, "candidates", n.Related)
	}

	candidates, err := MatchFuzzy(ctx, keptObs, keptImages, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("linkage engine: %w", err)
	}

	res := Reconcile(linked, candidates)
	res.Images = keptImages
	res.Threshold = e.cfg.Threshold
	res.TopK = e.cfg.TopK
	res.Notes = append(append([]model.Note{}, malformed...), duplicates...)
	res.Stats.Images = len(keptImages)
	res.Stats.Malformed = len(malformed)
	res.Stats.DuplicateDates = len(duplicates)

	e.logger.Debug("linkage complete",
		"observations", res.Stats.Observations,
		"images", res.Stats.Images,
		"exact", res.Stats.ExactLinks,
		"fuzzy", res.Stats.FuzzyMatched,
		"unmatched", res.Stats.Unmatched,
		"duration", time.Since(start),
	)

	return &res, nil
}
