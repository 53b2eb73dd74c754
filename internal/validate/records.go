package validate

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// Image checks the fields the linkage engine relies on.
func Image(img model.ImageRecord) error {
	if strings.TrimSpace(img.ID) == "" {
		return &model.RecordError{Record: "image", Reason: "missing id"}
	}
	if img.Date == "" {
		return &model.RecordError{Record: "image", ID: img.ID, Reason: "missing date"}
	}
	if !img.Date.Valid() {
		return &model.RecordError{Record: "image", ID: img.ID, Reason: fmt.Sprintf("invalid date %q", img.Date)}
	}
	return nil
}

// Observation checks the fields the linkage engine relies on.
func Observation(obs model.ObservationRecord) error {
	if strings.TrimSpace(obs.ID) == "" {
		return &model.RecordError{Record: "observation", Reason: "missing id"}
	}
	if obs.Date == "" {
		return &model.RecordError{Record: "observation", ID: obs.ID, Reason: "missing date"}
	}
	if !obs.Date.Valid() {
		return &model.RecordError{Record: "observation", ID: obs.ID, Reason: fmt.Sprintf("invalid date %q", obs.Date)}
	}
	if s := obs.Size; s != nil {
		if math.IsNaN(s.MinKM) || math.IsNaN(s.MaxKM) || !s.Valid() {
			return &model.RecordError{
				Record: "observation",
				ID:     obs.ID,
				Reason: fmt.Sprintf("size range %g..%g km", s.MinKM, s.MaxKM),
			}
		}
	}
	return nil
}

// Records splits both sets into usable records and one malformed_record
// warning note per rejected record. Input order is preserved. Observation ids
// must be unique: a repeated id keeps its first record.
func Records(observations []model.ObservationRecord, images []model.ImageRecord) ([]model.ObservationRecord, []model.ImageRecord, []model.Note) {
	var notes []model.Note

	keptImages := make([]model.ImageRecord, 0, len(images))
	for _, img := range images {
		if err := Image(img); err != nil {
			notes = append(notes, malformed(img.ID, err))
			continue
		}
		keptImages = append(keptImages, img)
	}

	keptObs := make([]model.ObservationRecord, 0, len(observations))
	seen := make(map[string]bool, len(observations))
	for _, obs := range observations {
		err := Observation(obs)
		if err == nil && seen[obs.ID] {
			err = &model.RecordError{Record: "observation", ID: obs.ID, Reason: "duplicate id"}
		}
		if err != nil {
			notes = append(notes, malformed(obs.ID, err))
			continue
		}
		seen[obs.ID] = true
		keptObs = append(keptObs, obs)
	}

	return keptObs, keptImages, notes
}

func malformed(id string, err error) model.Note {
	return model.Note{
		Kind:     model.NoteMalformedRecord,
		Severity: model.SeverityWarning,
		RecordID: id,
		Message:  err.Error(),
	}
}
