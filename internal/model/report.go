package model

import "time"

// Report is the exported form of a linkage run.
type Report struct {
	Subject     string    `json:"subject"`      // e.g. "APOD ↔ NEO linkage 2025-12-01..2025-12-07"
	GeneratedAt time.Time `json:"generated_at"` // When the report was built

	Linkage Linkage `json:"linkage"`

	Daily    []DailySummary `json:"daily,omitempty"` // Per-day object counts and size extremes
	Coverage Coverage       `json:"coverage"`        // Linkage coverage with transparent formulas

	Media []MediaStatus `json:"media,omitempty"` // Media URL probes, when enabled

	LLM *LLMSummary `json:"llm,omitempty"` // Optional narrative, never affects linkage
}

// DailySummary aggregates the observations listed on one day.
type DailySummary struct {
	Date       Day     `json:"date"`
	Count      int     `json:"count"`
	Hazardous  int     `json:"hazardous"`
	SmallestKM float64 `json:"smallest_km"`
	LargestKM  float64 `json:"largest_km"`
	ImageID    *string `json:"image_id,omitempty"` // Same-date image, when one exists
}

// Coverage describes how much of the observation set was linked.
type Coverage struct {
	ExactRatio     float64  `json:"exact_ratio"`
	FuzzyRatio     float64  `json:"fuzzy_ratio"`
	UnmatchedRatio float64  `json:"unmatched_ratio"`
	MeanFuzzyScore float64  `json:"mean_fuzzy_score"`
	Signals        []Signal `json:"signals"`
}

// Signal is a diagnostic with the data used to derive it.
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalExactCoverage  SignalType = "exact_coverage"  // Share of observations with a same-date image
	SignalFuzzyCoverage  SignalType = "fuzzy_coverage"  // Share rescued by text similarity
	SignalUnmatched      SignalType = "unmatched"       // Share left without any image
	SignalDuplicateDates SignalType = "duplicate_dates" // Images competing for the same date
	SignalDataQuality    SignalType = "data_quality"    // Records skipped as malformed
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// LLMSummary contains an optional narrative of the report.
// It is generated after linkage and never feeds back into it.
type LLMSummary struct {
	Enabled   bool     `json:"enabled"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Strict    bool     `json:"strict"`
	SummaryMD string   `json:"summary_md,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// MediaKind classifies the media behind an image record.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaOther MediaKind = "other"
)

// MediaStatus is the result of probing one image's media URL.
type MediaStatus struct {
	ImageID     string    `json:"image_id"`
	URL         string    `json:"url"`
	Kind        MediaKind `json:"kind"`
	NASAHosted  bool      `json:"nasa_hosted"`
	Accessible  bool      `json:"accessible"`
	StatusCode  int       `json:"status_code,omitempty"`
	Dead        bool      `json:"dead"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Error       string    `json:"error,omitempty"`
}
