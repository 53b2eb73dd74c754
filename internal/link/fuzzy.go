package link

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/ppiankov/skylink/internal/extract"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/score"
	"github.com/ppiankov/skylink/internal/worker"
)

// MatchFuzzy scores every observation name against every image's title and
// explanation and keeps, per observation, at most cfg.TopK candidates scoring
// at least cfg.Threshold, best first with ties broken by ascending image id.
//
// Observations are scored in parallel; the returned slice is grouped by
// observation in input order. An error is returned only for invalid
// configuration or a cancelled context, never with partial results.
func MatchFuzzy(ctx context.Context, observations []model.ObservationRecord, images []model.ImageRecord, cfg model.LinkageConfig) ([]model.MatchCandidate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(observations) == 0 || len(images) == 0 {
		return []model.MatchCandidate{}, nil
	}

	// Pairs sharing no token score 0, so the index is exact only when 0 < T.
	usePostings := cfg.Prefilter && cfg.Threshold > 0
	ix := newImageIndex(images, usePostings)

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(observations) {
		workers = len(observations)
	}

	pool := worker.NewPool[[]model.MatchCandidate](ctx, workers)
	pool.Start()
	for _, obs := range observations {
		pool.Submit(func(context.Context) []model.MatchCandidate {
			return rankImages(obs, ix, cfg.Threshold, cfg.TopK, usePostings)
		})
	}
	perObservation, err := pool.Wait()
	if err != nil {
		return nil, fmt.Errorf("fuzzy matching: %w", err)
	}

	total := 0
	for _, cands := range perObservation {
		total += len(cands)
	}
	out := make([]model.MatchCandidate, 0, total)
	for _, cands := range perObservation {
		out = append(out, cands...)
	}
	return out, nil
}

func rankImages(obs model.ObservationRecord, ix *imageIndex, threshold float64, topK int, usePostings bool) []model.MatchCandidate {
	query := extract.Tokenize(obs.Name)

	var positions []int
	if usePostings {
		positions = ix.sharing(query)
	} else {
		positions = make([]int, ix.len())
		for i := range positions {
			positions[i] = i
		}
	}

	var cands []model.MatchCandidate
	for _, pos := range positions {
		s := score.Jaccard(query, ix.tokens[pos])
		if s < threshold {
			continue
		}
		cands = append(cands, model.MatchCandidate{
			ObservationID: obs.ID,
			ImageID:       ix.ids[pos],
			Score:         s,
			Type:          model.MatchFuzzy,
		})
	}

	sortCandidates(cands)
	if len(cands) > topK {
		cands = cands[:topK]
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	return cands
}

// sortCandidates orders by score descending, then image id ascending.
func sortCandidates(cands []model.MatchCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return compareIDs(cands[i].ImageID, cands[j].ImageID) < 0
	})
}
