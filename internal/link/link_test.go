package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/ppiankov/skylink/internal/model"
)

func defaultCfg() model.LinkageConfig {
	return model.DefaultConfig().Linkage
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"7", "7", 0},
		{"07", "7", -1},
		{"apod-2025-12-01", "apod-2025-12-02", -1},
		{"b", "a", 1},
		{"9", "1a", -1},
		{"-3", "2", -1},
	}
	for _, tt := range tests {
		if got := compareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("compareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLowestID(t *testing.T) {
	if got := lowestID([]string{"12", "3", "100"}); got != "3" {
		t.Errorf("expected numeric minimum 3, got %s", got)
	}
	if got := lowestID([]string{"apod-b", "apod-a"}); got != "apod-a" {
		t.Errorf("expected lexicographic minimum, got %s", got)
	}
	if got := lowestID(nil); got != "" {
		t.Errorf("expected empty id for empty input, got %q", got)
	}
}

// Scenario: same calendar date links exactly, regardless of text.
func TestLinkByDate_SameDate(t *testing.T) {
	obs := []model.ObservationRecord{{ID: "1", Name: "(2011 GO27)", Date: "2025-12-02"}}
	imgs := []model.ImageRecord{{ID: "apod-2025-12-02", Title: "M77: Spiral Galaxy", Date: "2025-12-02"}}

	linked, notes := LinkByDate(obs, imgs)

	if len(notes) != 0 {
		t.Errorf("expected no notes, got %+v", notes)
	}
	if linked[0].LinkedImageID == nil || *linked[0].LinkedImageID != "apod-2025-12-02" {
		t.Fatalf("expected exact link, got %v", linked[0].LinkedImageID)
	}
	if obs[0].LinkedImageID != nil {
		t.Error("input observation must not be modified")
	}

	res := Reconcile(linked, nil)
	if len(res.Views) != 1 || res.Views[0].Type != model.MatchExactDate || res.Views[0].Score != 1.0 {
		t.Errorf("expected one exact_date view scored 1.0, got %+v", res.Views)
	}
}

// Scenario: two images on one date, lowest id wins on every run.
func TestLinkByDate_DuplicateDate(t *testing.T) {
	obs := []model.ObservationRecord{{ID: "1", Date: "2025-12-02"}}
	imgs := []model.ImageRecord{
		{ID: "20", Date: "2025-12-02"},
		{ID: "3", Date: "2025-12-02"},
		{ID: "5", Date: "2025-12-03"},
	}

	for run := 0; run < 10; run++ {
		linked, notes := LinkByDate(obs, imgs)
		if got := *linked[0].LinkedImageID; got != "3" {
			t.Fatalf("run %d: expected image 3, got %s", run, got)
		}
		if len(notes) != 1 {
			t.Fatalf("run %d: expected one duplicate note, got %d", run, len(notes))
		}
		n := notes[0]
		if n.Kind != model.NoteDuplicateDate || n.Severity != model.SeverityInfo || n.RecordID != "2025-12-02" {
			t.Errorf("unexpected note: %+v", n)
		}
		if !reflect.DeepEqual(n.Related, []string{"3", "20"}) {
			t.Errorf("expected related ids [3 20], got %v", n.Related)
		}
	}
}

func TestLinkByDate_NoImage(t *testing.T) {
	prior := (model.ObservationRecord{ID: "1", Date: "2025-12-01"}).WithLink("stale")
	linked, _ := LinkByDate([]model.ObservationRecord{prior}, nil)
	if linked[0].Linked() {
		t.Errorf("expected link to be cleared, got %v", *linked[0].LinkedImageID)
	}
}

func TestLinkByDate_Idempotent(t *testing.T) {
	obs := []model.ObservationRecord{
		{ID: "1", Date: "2025-12-01"},
		{ID: "2", Date: "2025-12-02"},
		{ID: "3", Date: "2025-12-05"},
	}
	imgs := []model.ImageRecord{
		{ID: "a", Date: "2025-12-01"},
		{ID: "b", Date: "2025-12-02"},
		{ID: "c", Date: "2025-12-02"},
	}

	first, firstNotes := LinkByDate(obs, imgs)
	second, secondNotes := LinkByDate(first, imgs)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("links differ between runs:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(firstNotes, secondNotes) {
		t.Errorf("notes differ between runs")
	}
}

// Scenario: overlap on "m77" gives a positive score kept only above threshold.
func TestMatchFuzzy_ThresholdGate(t *testing.T) {
	obs := []model.ObservationRecord{{ID: "1", Name: "M77 fragment", Date: "2025-12-01"}}
	imgs := []model.ImageRecord{{ID: "apod-2025-12-02", Title: "M77: Spiral Galaxy with an Active Center", Date: "2025-12-02"}}

	// {m77, fragment} vs seven title tokens share one: 1/8.
	cfg := defaultCfg()
	cands, err := MatchFuzzy(context.Background(), obs, imgs, cfg)
	if err != nil {
		t.Fatalf("MatchFuzzy failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected score 0.125 to be dropped at 0.15, got %+v", cands)
	}

	cfg.Threshold = 0.1
	cands, err = MatchFuzzy(context.Background(), obs, imgs, cfg)
	if err != nil {
		t.Fatalf("MatchFuzzy failed: %v", err)
	}
	if len(cands) != 1 || math.Abs(cands[0].Score-0.125) > 1e-12 || cands[0].Type != model.MatchFuzzy {
		t.Errorf("expected one fuzzy candidate scored 0.125, got %+v", cands)
	}
}

// Scenario: no images means no candidates and no links.
func TestMatchFuzzy_EmptyImages(t *testing.T) {
	obs := []model.ObservationRecord{{ID: "1", Name: "Orion", Date: "2025-12-01"}, {ID: "2", Name: "Vega", Date: "2025-12-02"}}

	cands, err := MatchFuzzy(context.Background(), obs, nil, defaultCfg())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands == nil || len(cands) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", cands)
	}

	linked, _ := LinkByDate(obs, nil)
	for _, o := range linked {
		if o.Linked() {
			t.Errorf("observation %s unexpectedly linked", o.ID)
		}
	}
}

func TestMatchFuzzy_InvalidConfig(t *testing.T) {
	cfg := defaultCfg()
	cfg.TopK = 0
	_, err := MatchFuzzy(context.Background(), nil, nil, cfg)
	if !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func fixture() ([]model.ObservationRecord, []model.ImageRecord) {
	obs := []model.ObservationRecord{
		{ID: "1", Name: "Orion Nebula fragment", Date: "2025-12-01"},
		{ID: "2", Name: "(2011 GO27)", Date: "2025-12-09"},
		{ID: "3", Name: "Galaxy spiral arm", Date: "2025-12-10"},
		{ID: "4", Name: "Orion", Date: "2025-12-11"},
		{ID: "5", Name: "", Date: "2025-12-12"},
	}
	imgs := []model.ImageRecord{
		{ID: "apod-2025-12-01", Date: "2025-12-01", Title: "The Orion Nebula", Explanation: "Stars form in Orion."},
		{ID: "apod-2025-12-02", Date: "2025-12-02", Title: "Orion Rising", Explanation: "Orion over the hills."},
		{ID: "apod-2025-12-03", Date: "2025-12-03", Title: "M77: Spiral Galaxy", Explanation: "A spiral galaxy."},
		{ID: "apod-2025-12-04", Date: "2025-12-04", Title: "Orion", Explanation: ""},
		{ID: "apod-2025-12-05", Date: "2025-12-05", Title: "Orion", Explanation: ""},
		{ID: "apod-2025-12-06", Date: "2025-12-06", Title: "Orion", Explanation: ""},
		{ID: "apod-2025-12-07", Date: "2025-12-07", Title: "Orion", Explanation: ""},
	}
	return obs, imgs
}

func TestMatchFuzzy_Properties(t *testing.T) {
	obs, imgs := fixture()

	for _, threshold := range []float64{0, 0.05, 0.15, 0.3, 1} {
		for _, topK := range []int{1, 3, 10} {
			cfg := model.LinkageConfig{Threshold: threshold, TopK: topK, Workers: 3, Prefilter: true}
			cands, err := MatchFuzzy(context.Background(), obs, imgs, cfg)
			if err != nil {
				t.Fatalf("T=%v K=%d: %v", threshold, topK, err)
			}

			per := make(map[string][]model.MatchCandidate)
			for _, c := range cands {
				if c.Score < threshold {
					t.Errorf("T=%v: candidate below threshold: %+v", threshold, c)
				}
				per[c.ObservationID] = append(per[c.ObservationID], c)
			}
			for id, list := range per {
				if len(list) > topK {
					t.Errorf("T=%v K=%d: observation %s has %d candidates", threshold, topK, id, len(list))
				}
				for i := 1; i < len(list); i++ {
					if list[i].Score > list[i-1].Score {
						t.Errorf("observation %s: scores not non-increasing: %+v", id, list)
					}
					if list[i].Score == list[i-1].Score && compareIDs(list[i-1].ImageID, list[i].ImageID) >= 0 {
						t.Errorf("observation %s: tie not broken by ascending image id: %+v", id, list)
					}
					if list[i].Rank != i+1 {
						t.Errorf("observation %s: rank %d at position %d", id, list[i].Rank, i)
					}
				}
			}
		}
	}
}

func TestMatchFuzzy_TieBreakByImageID(t *testing.T) {
	obs, imgs := fixture()
	cfg := model.LinkageConfig{Threshold: 0.15, TopK: 3, Workers: 2, Prefilter: true}

	cands, err := MatchFuzzy(context.Background(), obs[3:4], imgs, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// "Orion" scores 1.0 against the four single-word titles.
	want := []string{"apod-2025-12-04", "apod-2025-12-05", "apod-2025-12-06"}
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %+v", cands)
	}
	for i, c := range cands {
		if c.ImageID != want[i] || c.Score != 1 {
			t.Errorf("candidate %d = %s (%v), want %s (1)", i, c.ImageID, c.Score, want[i])
		}
	}
}

func TestMatchFuzzy_PrefilterIsExact(t *testing.T) {
	obs, imgs := fixture()

	for _, threshold := range []float64{0.01, 0.15, 0.5} {
		with := model.LinkageConfig{Threshold: threshold, TopK: 5, Workers: 2, Prefilter: true}
		without := with
		without.Prefilter = false

		a, err := MatchFuzzy(context.Background(), obs, imgs, with)
		if err != nil {
			t.Fatal(err)
		}
		b, err := MatchFuzzy(context.Background(), obs, imgs, without)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("T=%v: prefilter changed the result:\n%+v\n%+v", threshold, a, b)
		}
	}
}

func TestMatchFuzzy_ZeroThresholdScoresEveryPair(t *testing.T) {
	obs, imgs := fixture()
	cfg := model.LinkageConfig{Threshold: 0, TopK: len(imgs), Workers: 2, Prefilter: true}

	cands, err := MatchFuzzy(context.Background(), obs, imgs, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != len(obs)*len(imgs) {
		t.Errorf("expected every pair at T=0, got %d of %d", len(cands), len(obs)*len(imgs))
	}
}

func TestMatchFuzzy_Deterministic(t *testing.T) {
	obs, imgs := fixture()

	var first []byte
	for run := 0; run < 20; run++ {
		cfg := model.LinkageConfig{Threshold: 0.05, TopK: 3, Workers: 1 + run%4, Prefilter: run%2 == 0}
		cands, err := MatchFuzzy(context.Background(), obs, imgs, cfg)
		if err != nil {
			t.Fatal(err)
		}
		b, err := json.Marshal(cands)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = b
			continue
		}
		if string(b) != string(first) {
			t.Fatalf("run %d differs:\n%s\n%s", run, first, b)
		}
	}
}

func TestMatchFuzzy_GroupedInObservationOrder(t *testing.T) {
	obs, imgs := fixture()
	cands, err := MatchFuzzy(context.Background(), obs, imgs, model.LinkageConfig{Threshold: 0.05, TopK: 3, Workers: 4})
	if err != nil {
		t.Fatal(err)
	}

	pos := make(map[string]int)
	for i, o := range obs {
		pos[o.ID] = i
	}
	for i := 1; i < len(cands); i++ {
		if pos[cands[i].ObservationID] < pos[cands[i-1].ObservationID] {
			t.Fatalf("candidates out of observation order at %d: %+v", i, cands)
		}
	}
}

func TestMatchFuzzy_Cancelled(t *testing.T) {
	obs, imgs := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cands, err := MatchFuzzy(ctx, obs, imgs, defaultCfg())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if cands != nil {
		t.Errorf("expected no partial result, got %+v", cands)
	}
}

func TestReconcile(t *testing.T) {
	linked := []model.ObservationRecord{
		(model.ObservationRecord{ID: "1", Date: "2025-12-01"}).WithLink("apod-2025-12-01"),
		{ID: "2", Date: "2025-12-09"},
		{ID: "3", Date: "2025-12-10"},
	}
	cands := []model.MatchCandidate{
		{ObservationID: "1", ImageID: "apod-2025-12-02", Score: 0.9, Type: model.MatchFuzzy, Rank: 1},
		{ObservationID: "2", ImageID: "apod-2025-12-03", Score: 0.4, Type: model.MatchFuzzy, Rank: 1},
		{ObservationID: "2", ImageID: "apod-2025-12-04", Score: 0.2, Type: model.MatchFuzzy, Rank: 2},
		{ObservationID: "ghost", ImageID: "apod-2025-12-04", Score: 0.2, Type: model.MatchFuzzy, Rank: 1},
	}

	res := Reconcile(linked, cands)

	if len(res.Views) != 3 {
		t.Fatalf("expected one view per observation, got %d", len(res.Views))
	}

	exact := res.Views[0]
	if exact.Type != model.MatchExactDate || exact.Score != 1.0 || *exact.ImageID != "apod-2025-12-01" || len(exact.Alternatives) != 0 {
		t.Errorf("expected exact view without alternatives, got %+v", exact)
	}

	fuzzy := res.Views[1]
	if fuzzy.Type != model.MatchFuzzy || *fuzzy.ImageID != "apod-2025-12-03" || fuzzy.Score != 0.4 {
		t.Errorf("expected best fuzzy candidate as primary, got %+v", fuzzy)
	}
	if len(fuzzy.Alternatives) != 1 || fuzzy.Alternatives[0].ImageID != "apod-2025-12-04" {
		t.Errorf("expected one alternative, got %+v", fuzzy.Alternatives)
	}

	none := res.Views[2]
	if none.Type != model.MatchNone || none.ImageID != nil || none.Score != 0 {
		t.Errorf("expected unmatched view, got %+v", none)
	}
	if !reflect.DeepEqual(res.Unmatched, []string{"3"}) {
		t.Errorf("expected Unmatched [3], got %v", res.Unmatched)
	}

	// Exact row plus all fuzzy rows, hidden ones included, stray ids ignored.
	if len(res.Candidates) != 4 {
		t.Errorf("expected 4 persisted candidates, got %+v", res.Candidates)
	}
	if res.Candidates[0].Type != model.MatchExactDate || res.Candidates[1].ImageID != "apod-2025-12-02" {
		t.Errorf("unexpected candidate order: %+v", res.Candidates)
	}

	want := model.LinkageStats{Observations: 3, ExactLinks: 1, FuzzyMatched: 1, Unmatched: 1, FuzzyCandidates: 3}
	if res.Stats != want {
		t.Errorf("stats = %+v, want %+v", res.Stats, want)
	}
}

func TestEngine_Run(t *testing.T) {
	obs, imgs := fixture()
	obs = append(obs, model.ObservationRecord{ID: "", Date: "2025-12-01", Name: "no id"})
	obs = append(obs, model.ObservationRecord{ID: "9", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 2, MaxKM: 1}})
	imgs = append(imgs, model.ImageRecord{ID: "apod-dup", Date: "2025-12-01", Title: "Orion again"})

	engine := NewEngine(defaultCfg(), nil)
	res, err := engine.Run(context.Background(), obs, imgs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Stats.Malformed != 2 || res.Stats.Observations != 5 {
		t.Errorf("expected 2 malformed and 5 kept observations, got %+v", res.Stats)
	}
	if res.Stats.DuplicateDates != 1 {
		t.Errorf("expected one duplicate date, got %d", res.Stats.DuplicateDates)
	}
	if len(res.Views) != 5 {
		t.Fatalf("expected 5 views, got %d", len(res.Views))
	}

	// Same-date observation wins the lowest id and suppresses fuzzy rows.
	first := res.Views[0]
	if first.Type != model.MatchExactDate || *first.ImageID != "apod-2025-12-01" || first.Score != 1 || len(first.Alternatives) != 0 {
		t.Errorf("unexpected first view: %+v", first)
	}

	for _, v := range res.Views {
		if v.Type == model.MatchNone && v.ImageID != nil {
			t.Errorf("unmatched view with image: %+v", v)
		}
	}

	kinds := map[model.NoteKind]int{}
	for _, n := range res.Notes {
		kinds[n.Kind]++
	}
	if kinds[model.NoteMalformedRecord] != 2 || kinds[model.NoteDuplicateDate] != 1 {
		t.Errorf("unexpected notes: %+v", res.Notes)
	}
	if res.Threshold != 0.15 || res.TopK != 3 {
		t.Errorf("expected configuration echoed in result, got T=%v K=%d", res.Threshold, res.TopK)
	}
}

func TestEngine_Run_InvalidConfig(t *testing.T) {
	tests := []model.LinkageConfig{
		{Threshold: -0.01, TopK: 3},
		{Threshold: 1.01, TopK: 3},
		{Threshold: 0.15, TopK: 0},
	}
	obs, imgs := fixture()

	for _, cfg := range tests {
		t.Run(fmt.Sprintf("T=%v,K=%d", cfg.Threshold, cfg.TopK), func(t *testing.T) {
			res, err := NewEngine(cfg, nil).Run(context.Background(), obs, imgs)
			if !errors.Is(err, model.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if res != nil {
				t.Error("expected no result on configuration error")
			}
		})
	}
}

func TestEngine_Run_EmptyInputs(t *testing.T) {
	res, err := NewEngine(defaultCfg(), nil).Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("empty input must not be an error: %v", err)
	}
	if len(res.Views) != 0 || len(res.Candidates) != 0 || len(res.Unmatched) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"views", "candidates", "unmatched"} {
		if decoded[key] == nil {
			t.Errorf("expected %s to encode as an empty list, got null", key)
		}
	}
}

func TestEngine_Run_OnlyObservations(t *testing.T) {
	obs, _ := fixture()
	res, err := NewEngine(defaultCfg(), nil).Run(context.Background(), obs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unmatched) != len(obs) {
		t.Errorf("expected every observation unmatched, got %v", res.Unmatched)
	}
}

func TestEngine_Run_Deterministic(t *testing.T) {
	obs, imgs := fixture()
	engine := NewEngine(model.LinkageConfig{Threshold: 0.05, TopK: 3, Workers: 4, Prefilter: true}, nil)

	var first []byte
	for i := 0; i < 10; i++ {
		res, err := engine.Run(context.Background(), obs, imgs)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := json.Marshal(res)
		if first == nil {
			first = b
		} else if string(b) != string(first) {
			t.Fatalf("run %d produced a different result", i)
		}
	}
}

func TestEngine_Run_DuplicateObservationID(t *testing.T) {
	obs := []model.ObservationRecord{
		{ID: "1", Date: "2025-11-01", Name: "Lemmon"},
		{ID: "1", Date: "2025-11-02", Name: "Lemmon"},
	}
	imgs := []model.ImageRecord{
		{ID: "apod-2025-12-01", Date: "2025-12-01", Title: "Lemmon"},
		{ID: "apod-2025-12-02", Date: "2025-12-02", Title: "Lemmon rising"},
		{ID: "apod-2025-12-03", Date: "2025-12-03", Title: "Lemmon tail"},
		{ID: "apod-2025-12-04", Date: "2025-12-04", Title: "Lemmon again"},
	}

	res, err := NewEngine(defaultCfg(), nil).Run(context.Background(), obs, imgs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Views) != 1 || res.Stats.Malformed != 1 {
		t.Fatalf("expected one view and one malformed record, got %d views, %+v", len(res.Views), res.Stats)
	}
	if alts := len(res.Views[0].Alternatives); alts != res.TopK-1 {
		t.Errorf("expected %d alternatives, got %d", res.TopK-1, alts)
	}
	rows := 0
	for _, c := range res.Candidates {
		if c.ObservationID == "1" && c.Type == model.MatchFuzzy {
			rows++
		}
	}
	if rows != res.TopK {
		t.Errorf("expected %d fuzzy rows for id 1, got %d", res.TopK, rows)
	}
}

func TestMatchFuzzy_DuplicateImageID(t *testing.T) {
	obs := []model.ObservationRecord{{ID: "1", Date: "2025-11-01", Name: "Orion"}}
	imgs := []model.ImageRecord{
		{ID: "apod-2025-12-01", Date: "2025-12-01", Title: "Orion"},
		{ID: "apod-2025-12-01", Date: "2025-12-01", Title: "Orion"},
		{ID: "apod-2025-12-02", Date: "2025-12-02", Title: "Orion"},
	}

	for _, prefilter := range []bool{true, false} {
		cfg := model.LinkageConfig{Threshold: 0.15, TopK: 3, Workers: 1, Prefilter: prefilter}
		cands, err := MatchFuzzy(context.Background(), obs, imgs, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(cands) != 2 || cands[0].ImageID != "apod-2025-12-01" || cands[1].ImageID != "apod-2025-12-02" {
			t.Errorf("prefilter=%v: expected each image once, got %+v", prefilter, cands)
		}
	}
}
