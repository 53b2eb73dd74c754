package model

import "time"

// MatchType identifies the strategy that produced a link.
type MatchType string

const (
	MatchExactDate MatchType = "exact_date" // Same calendar date
	MatchFuzzy     MatchType = "fuzzy"      // Token overlap between name and title+explanation
	MatchNone      MatchType = "none"       // No link found
)

// ExactScore is the score every exact-date link carries.
const ExactScore = 1.0

// MatchCandidate is a scored (observation, image) pair.
type MatchCandidate struct {
	ObservationID string    `json:"observation_id"`
	ImageID       string    `json:"image_id"`
	Score         float64   `json:"score"`
	Type          MatchType `json:"match_type"`
	Rank          int       `json:"rank"` // 1-based position within the observation's list
}

// LinkageView is the reconciled row for one observation.
// ImageID is nil when nothing matched; Alternatives holds the remaining fuzzy
// candidates when the primary link is itself fuzzy.
type LinkageView struct {
	ObservationID string           `json:"observation_id"`
	ImageID       *string          `json:"image_id"`
	Score         float64          `json:"score"`
	Type          MatchType        `json:"match_type"`
	Alternatives  []MatchCandidate `json:"alternatives,omitempty"`
}

// Matched reports whether the view carries an image reference.
func (v LinkageView) Matched() bool {
	return v.ImageID != nil
}

// NoteKind classifies engine notes.
type NoteKind string

const (
	NoteMalformedRecord  NoteKind = "malformed_record"
	NoteDuplicateDate    NoteKind = "duplicate_date"
	NoteMediaUnavailable NoteKind = "media_unavailable"
)

// Note is a non-fatal observation recorded during a run.
type Note struct {
	Kind     NoteKind       `json:"kind"`
	Severity SignalSeverity `json:"severity"`
	RecordID string         `json:"record_id,omitempty"`
	Message  string         `json:"message"`
	Related  []string       `json:"related,omitempty"`
}

// LinkageStats counts the outcome of a run.
type LinkageStats struct {
	Observations    int `json:"observations"`
	Images          int `json:"images"`
	ExactLinks      int `json:"exact_links"`
	FuzzyMatched    int `json:"fuzzy_matched"`
	Unmatched       int `json:"unmatched"`
	FuzzyCandidates int `json:"fuzzy_candidates"`
	Malformed       int `json:"malformed"`
	DuplicateDates  int `json:"duplicate_dates"`
}

// Linkage is the complete result of one engine run.
// Observations are the linked copies; Candidates holds every exact and fuzzy
// row for persistence, including fuzzy rows hidden from Views.
type Linkage struct {
	RunID        string              `json:"run_id,omitempty"`
	GeneratedAt  time.Time           `json:"generated_at"`
	Range        *DateRange          `json:"range,omitempty"`
	Threshold    float64             `json:"threshold"`
	TopK         int                 `json:"top_k"`
	Observations []ObservationRecord `json:"observations"`
	Images       []ImageRecord       `json:"images"`
	Views        []LinkageView       `json:"views"`
	Candidates   []MatchCandidate    `json:"candidates"`
	Unmatched    []string            `json:"unmatched"`
	Notes        []Note              `json:"notes,omitempty"`
	Stats        LinkageStats        `json:"stats"`
}

// ImageByID indexes the run's images.
func (l *Linkage) ImageByID() map[string]ImageRecord {
	out := make(map[string]ImageRecord, len(l.Images))
	for _, img := range l.Images {
		out[img.ID] = img
	}
	return out
}

// ObservationByID indexes the run's observations.
func (l *Linkage) ObservationByID() map[string]ObservationRecord {
	out := make(map[string]ObservationRecord, len(l.Observations))
	for _, obs := range l.Observations {
		out[obs.ID] = obs
	}
	return out
}
