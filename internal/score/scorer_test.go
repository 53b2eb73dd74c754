package score

import (
	"math"
	"testing"

	"github.com/ppiankov/skylink/internal/extract"
	"github.com/ppiankov/skylink/internal/model"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b extract.TokenSet
		want float64
	}{
		{"both empty", extract.NewTokenSet(), extract.NewTokenSet(), 0},
		{"one empty", extract.NewTokenSet("orion"), extract.NewTokenSet(), 0},
		{"identical", extract.NewTokenSet("orion", "nebula"), extract.NewTokenSet("nebula", "orion"), 1},
		{"disjoint", extract.NewTokenSet("moon"), extract.NewTokenSet("sun"), 0},
		{"half", extract.NewTokenSet("a", "b"), extract.NewTokenSet("b", "c", "d", "a"), 0.5},
		{"one of three", extract.NewTokenSet("a", "b"), extract.NewTokenSet("b", "c"), 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Jaccard = %v, want %v", got, tt.want)
			}
			if rev := Jaccard(tt.b, tt.a); rev != got {
				t.Errorf("Jaccard not symmetric: %v vs %v", got, rev)
			}
			if got < 0 || got > 1 {
				t.Errorf("Jaccard out of range: %v", got)
			}
		})
	}
}

func TestJaccard_SelfSimilarity(t *testing.T) {
	for _, text := range []string{"2011 GO27", "M77: Spiral Galaxy", "a"} {
		set := extract.Tokenize(text)
		if got := Jaccard(set, set); got != 1 {
			t.Errorf("Jaccard(%q, itself) = %v, want 1", text, got)
		}
	}
}

func ptr(s string) *string { return &s }

func TestScorer_Calculate(t *testing.T) {
	l := &model.Linkage{
		Threshold: 0.15,
		Views: []model.LinkageView{
			{ObservationID: "1", ImageID: ptr("apod-2025-12-01"), Score: 1, Type: model.MatchExactDate},
			{ObservationID: "2", ImageID: ptr("apod-2025-12-01"), Score: 0.5, Type: model.MatchFuzzy},
			{ObservationID: "3", ImageID: ptr("apod-2025-12-02"), Score: 0.3, Type: model.MatchFuzzy},
			{ObservationID: "4", Type: model.MatchNone},
		},
		Notes: []model.Note{
			{Kind: model.NoteDuplicateDate, RecordID: "2025-12-01"},
			{Kind: model.NoteMalformedRecord, RecordID: "x"},
		},
	}

	cov := NewScorer().Calculate(l)

	if cov.ExactRatio != 0.25 || cov.FuzzyRatio != 0.5 || cov.UnmatchedRatio != 0.25 {
		t.Errorf("unexpected ratios: %+v", cov)
	}
	if math.Abs(cov.MeanFuzzyScore-0.4) > 1e-9 {
		t.Errorf("expected mean fuzzy score 0.4, got %v", cov.MeanFuzzyScore)
	}

	types := make(map[model.SignalType]model.Signal)
	for _, s := range cov.Signals {
		types[s.Type] = s
	}
	for _, want := range []model.SignalType{
		model.SignalExactCoverage, model.SignalFuzzyCoverage, model.SignalUnmatched,
		model.SignalDuplicateDates, model.SignalDataQuality,
	} {
		if _, ok := types[want]; !ok {
			t.Errorf("expected signal %s", want)
		}
	}
	if types[model.SignalUnmatched].Severity != model.SeverityWarning {
		t.Errorf("expected warning for 25%% unmatched, got %s", types[model.SignalUnmatched].Severity)
	}
}

func TestScorer_Calculate_Empty(t *testing.T) {
	cov := NewScorer().Calculate(&model.Linkage{})

	if cov.ExactRatio != 0 || cov.FuzzyRatio != 0 || cov.UnmatchedRatio != 0 {
		t.Errorf("expected zero ratios, got %+v", cov)
	}
	if len(cov.Signals) != 3 {
		t.Errorf("expected only the three coverage signals, got %d", len(cov.Signals))
	}
	for _, s := range cov.Signals {
		if s.Severity != model.SeverityInfo {
			t.Errorf("expected info severity for empty run, got %s on %s", s.Severity, s.Type)
		}
	}
}

func TestScorer_AllUnmatchedIsCritical(t *testing.T) {
	l := &model.Linkage{Views: []model.LinkageView{
		{ObservationID: "1", Type: model.MatchNone},
		{ObservationID: "2", Type: model.MatchNone},
	}}

	for _, s := range NewScorer().Calculate(l).Signals {
		if s.Type == model.SignalUnmatched && s.Severity != model.SeverityCritical {
			t.Errorf("expected critical, got %s", s.Severity)
		}
		if s.Type == model.SignalExactCoverage && s.Severity != model.SeverityWarning {
			t.Errorf("expected warning for zero exact links, got %s", s.Severity)
		}
	}
}

func TestDailySummaries(t *testing.T) {
	obs := []model.ObservationRecord{
		{ID: "3", Date: "2025-12-02", Size: &model.SizeRange{MinKM: 0.5, MaxKM: 1.2}},
		{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 0.1, MaxKM: 0.3}, Hazardous: true},
		{ID: "2", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 0.05, MaxKM: 0.2}},
		{ID: "4", Date: "2025-12-01"},
		(model.ObservationRecord{ID: "5", Date: "2025-12-02"}).WithLink("apod-2025-12-02"),
	}

	days := DailySummaries(obs)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}

	first := days[0]
	if first.Date != "2025-12-01" || first.Count != 3 || first.Hazardous != 1 {
		t.Errorf("unexpected first day: %+v", first)
	}
	if first.SmallestKM != 0.05 || first.LargestKM != 0.3 {
		t.Errorf("unexpected extremes: %v..%v", first.SmallestKM, first.LargestKM)
	}
	if first.ImageID != nil {
		t.Errorf("expected no image on first day, got %v", *first.ImageID)
	}

	second := days[1]
	if second.ImageID == nil || *second.ImageID != "apod-2025-12-02" {
		t.Errorf("expected linked image on second day, got %v", second.ImageID)
	}
	if second.SmallestKM != 0.5 || second.LargestKM != 1.2 {
		t.Errorf("unexpected extremes: %v..%v", second.SmallestKM, second.LargestKM)
	}
}
