package link

import (
	"github.com/ppiankov/skylink/internal/model"
)

// Result is the outcome of one linkage run.
type Result = model.Linkage

// Reconcile merges exact-date links and fuzzy candidates into one view per
// observation, in input order.
//
// A linked observation gets a single exact_date view scored 1.0 and its fuzzy
// candidates are hidden from the view. Otherwise the best fuzzy candidate is
// primary and the rest become alternatives. Observations with neither get a
// view without image, scored 0, and are listed in Unmatched.
//
// Candidates returned in Result.Candidates hold one exact row per linked
// observation followed by all of its fuzzy rows, including hidden ones.
func Reconcile(linked []model.ObservationRecord, candidates []model.MatchCandidate) Result {
	fuzzy := make(map[string][]model.MatchCandidate)
	for _, c := range candidates {
		if c.Type != model.MatchFuzzy {
			continue
		}
		fuzzy[c.ObservationID] = append(fuzzy[c.ObservationID], c)
	}
	for id := range fuzzy {
		sortCandidates(fuzzy[id])
	}

	res := Result{
		Observations: linked,
		Views:        make([]model.LinkageView, 0, len(linked)),
		Candidates:   make([]model.MatchCandidate, 0, len(linked)+len(candidates)),
		Unmatched:    []string{},
	}
	res.Stats.Observations = len(linked)

	for _, obs := range linked {
		cands := fuzzy[obs.ID]
		res.Stats.FuzzyCandidates += len(cands)

		switch {
		case obs.LinkedImageID != nil:
			exact := model.MatchCandidate{
				ObservationID: obs.ID,
				ImageID:       *obs.LinkedImageID,
				Score:         model.ExactScore,
				Type:          model.MatchExactDate,
				Rank:          1,
			}
			res.Candidates = append(res.Candidates, exact)
			res.Views = append(res.Views, model.LinkageView{
				ObservationID: obs.ID,
				ImageID:       strPtr(exact.ImageID),
				Score:         model.ExactScore,
				Type:          model.MatchExactDate,
			})
			res.Stats.ExactLinks++

		case len(cands) > 0:
			best := cands[0]
			view := model.LinkageView{
				ObservationID: obs.ID,
				ImageID:       strPtr(best.ImageID),
				Score:         best.Score,
				Type:          model.MatchFuzzy,
			}
			if len(cands) > 1 {
				view.Alternatives = append([]model.MatchCandidate(nil), cands[1:]...)
			}
			res.Views = append(res.Views, view)
			res.Stats.FuzzyMatched++

		default:
			res.Views = append(res.Views, model.LinkageView{
				ObservationID: obs.ID,
				Type:          model.MatchNone,
			})
			res.Unmatched = append(res.Unmatched, obs.ID)
			res.Stats.Unmatched++
		}

		res.Candidates = append(res.Candidates, cands...)
	}

	return res
}

func strPtr(s string) *string {
	return &s
}
