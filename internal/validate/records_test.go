package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/ppiankov/skylink/internal/model"
)

func TestObservation(t *testing.T) {
	tests := []struct {
		name    string
		obs     model.ObservationRecord
		wantErr bool
	}{
		{"valid", model.ObservationRecord{ID: "1", Date: "2025-12-01", Name: "(2011 GO27)"}, false},
		{"valid with size", model.ObservationRecord{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 0.1, MaxKM: 0.2}}, false},
		{"equal bounds", model.ObservationRecord{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 0.1, MaxKM: 0.1}}, false},
		{"empty name allowed", model.ObservationRecord{ID: "1", Date: "2025-12-01"}, false},
		{"missing id", model.ObservationRecord{Date: "2025-12-01"}, true},
		{"blank id", model.ObservationRecord{ID: "  ", Date: "2025-12-01"}, true},
		{"missing date", model.ObservationRecord{ID: "1"}, true},
		{"bad date", model.ObservationRecord{ID: "1", Date: "2025-02-30"}, true},
		{"min above max", model.ObservationRecord{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: 2, MaxKM: 1}}, true},
		{"negative min", model.ObservationRecord{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: -1, MaxKM: 1}}, true},
		{"NaN size", model.ObservationRecord{ID: "1", Date: "2025-12-01", Size: &model.SizeRange{MinKM: math.NaN(), MaxKM: 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Observation(tt.obs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Observation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, model.ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestImage(t *testing.T) {
	tests := []struct {
		name    string
		img     model.ImageRecord
		wantErr bool
	}{
		{"valid", model.ImageRecord{ID: "apod-2025-12-01", Date: "2025-12-01"}, false},
		{"empty text allowed", model.ImageRecord{ID: "7", Date: "2025-12-01"}, false},
		{"missing id", model.ImageRecord{Date: "2025-12-01"}, true},
		{"missing date", model.ImageRecord{ID: "7"}, true},
		{"bad date", model.ImageRecord{ID: "7", Date: "01/12/2025"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Image(tt.img); (err != nil) != tt.wantErr {
				t.Errorf("Image() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecords(t *testing.T) {
	obs := []model.ObservationRecord{
		{ID: "1", Date: "2025-12-01"},
		{ID: "2"},
		{ID: "3", Date: "2025-12-02"},
	}
	imgs := []model.ImageRecord{
		{ID: "a", Date: "2025-12-01"},
		{Date: "2025-12-02"},
	}

	keptObs, keptImgs, notes := Records(obs, imgs)

	if len(keptObs) != 2 || keptObs[0].ID != "1" || keptObs[1].ID != "3" {
		t.Errorf("unexpected observations kept: %+v", keptObs)
	}
	if len(keptImgs) != 1 || keptImgs[0].ID != "a" {
		t.Errorf("unexpected images kept: %+v", keptImgs)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	for _, n := range notes {
		if n.Kind != model.NoteMalformedRecord || n.Severity != model.SeverityWarning {
			t.Errorf("unexpected note: %+v", n)
		}
	}
	if notes[1].RecordID != "2" {
		t.Errorf("expected observation note for id 2, got %q", notes[1].RecordID)
	}
}

func TestRecords_DuplicateObservationID(t *testing.T) {
	obs := []model.ObservationRecord{
		{ID: "1", Date: "2025-12-01", Name: "first"},
		{ID: "2", Date: "2025-12-01"},
		{ID: "1", Date: "2025-12-02", Name: "second"},
	}

	keptObs, _, notes := Records(obs, nil)

	if len(keptObs) != 2 || keptObs[0].Name != "first" || keptObs[1].ID != "2" {
		t.Errorf("expected the first record of id 1 to be kept, got %+v", keptObs)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].Kind != model.NoteMalformedRecord || notes[0].RecordID != "1" {
		t.Errorf("unexpected note: %+v", notes[0])
	}
}
