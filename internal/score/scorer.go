package score

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/skylink/internal/model"
)

// Scorer derives coverage diagnostics from a linkage run
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate summarises how the observations of l were linked and emits one
// signal per concern. It never changes the linkage itself.
func (s *Scorer) Calculate(l *model.Linkage) model.Coverage {
	total := len(l.Views)

	var exact, fuzzy, none int
	var fuzzySum float64
	for _, v := range l.Views {
		switch v.Type {
		case model.MatchExactDate:
			exact++
		case model.MatchFuzzy:
			fuzzy++
			fuzzySum += v.Score
		default:
			none++
		}
	}

	cov := model.Coverage{
		ExactRatio:     ratio(exact, total),
		FuzzyRatio:     ratio(fuzzy, total),
		UnmatchedRatio: ratio(none, total),
	}
	if fuzzy > 0 {
		cov.MeanFuzzyScore = fuzzySum / float64(fuzzy)
	}

	cov.Signals = append(cov.Signals,
		s.exactSignal(exact, total),
		s.fuzzySignal(fuzzy, total, cov.MeanFuzzyScore, l.Threshold),
		s.unmatchedSignal(none, total),
	)
	if sig, ok := s.duplicateSignal(l.Notes); ok {
		cov.Signals = append(cov.Signals, sig)
	}
	if sig, ok := s.qualitySignal(l.Notes, total); ok {
		cov.Signals = append(cov.Signals, sig)
	}

	return cov
}

func (s *Scorer) exactSignal(exact, total int) model.Signal {
	r := ratio(exact, total)

	severity := model.SeverityInfo
	if total > 0 && exact == 0 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalExactCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Same-date links: %d/%d (%.0f%%)", exact, total, r*100),
		Data: map[string]interface{}{
			"exact":   exact,
			"total":   total,
			"ratio":   r,
			"formula": "exact_links / observations",
		},
	}
}

func (s *Scorer) fuzzySignal(fuzzy, total int, mean, threshold float64) model.Signal {
	r := ratio(fuzzy, total)

	// A mean close to the threshold means most fuzzy links barely qualified.
	severity := model.SeverityInfo
	if fuzzy > 0 && mean < threshold+0.05 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalFuzzyCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Text-similarity links: %d/%d, mean score %.3f", fuzzy, total, mean),
		Data: map[string]interface{}{
			"fuzzy":      fuzzy,
			"total":      total,
			"ratio":      r,
			"mean_score": mean,
			"threshold":  threshold,
			"formula":    "fuzzy_primary_links / observations",
		},
	}
}

func (s *Scorer) unmatchedSignal(none, total int) model.Signal {
	r := ratio(none, total)

	severity := model.SeverityInfo
	if r >= 0.5 {
		severity = model.SeverityCritical
	} else if r >= 0.2 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalUnmatched,
		Severity:    severity,
		Description: fmt.Sprintf("Unmatched observations: %d/%d (%.0f%%)", none, total, r*100),
		Data: map[string]interface{}{
			"unmatched": none,
			"total":     total,
			"ratio":     r,
		},
	}
}

func (s *Scorer) duplicateSignal(notes []model.Note) (model.Signal, bool) {
	var dates []string
	for _, n := range notes {
		if n.Kind == model.NoteDuplicateDate {
			dates = append(dates, n.RecordID)
		}
	}
	if len(dates) == 0 {
		return model.Signal{}, false
	}
	sort.Strings(dates)

	return model.Signal{
		Type:        model.SignalDuplicateDates,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d date(s) carry more than one image; lowest id was linked", len(dates)),
		Data: map[string]interface{}{
			"dates": dates,
		},
	}, true
}

func (s *Scorer) qualitySignal(notes []model.Note, kept int) (model.Signal, bool) {
	malformed := 0
	for _, n := range notes {
		if n.Kind == model.NoteMalformedRecord {
			malformed++
		}
	}
	if malformed == 0 {
		return model.Signal{}, false
	}

	severity := model.SeverityWarning
	if malformed > kept {
		severity = model.SeverityCritical
	}

	return model.Signal{
		Type:        model.SignalDataQuality,
		Severity:    severity,
		Description: fmt.Sprintf("%d malformed record(s) skipped", malformed),
		Data: map[string]interface{}{
			"malformed": malformed,
			"kept":      kept,
		},
	}, true
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1e4) / 1e4
}
