package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/util"
)

// ErrCitationLeak is returned in strict mode when a narrative names an image
// id that is not part of the report.
var ErrCitationLeak = errors.New("citation leak")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a narrative of the report
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	Report model.Report

	// AllowedImageIDs are the only image ids the narrative may mention.
	AllowedImageIDs []string

	// Prompt overrides the default prompt when set
	Prompt string

	Model     string
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary       string
	CitedImageIDs []string
	Model         string
	TokensUsed    int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom or OpenAI-compatible endpoints
	BaseURL string

	Timeout int // seconds

	// Strict rejects narratives that mention image ids outside the report
	Strict bool

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:   30,
		Strict:    true,
		MaxTokens: 800,
	}
}

const systemPrompt = "You summarize skylink reports, which link NASA Astronomy Pictures of the Day to near-Earth object observations. Describe only what the report contains."

// maxPromptImages bounds the image list in the prompt.
const maxPromptImages = 20

// BuildPrompt constructs the default prompt for a linkage report.
func BuildPrompt(report model.Report, allowedIDs []string) string {
	l := report.Linkage
	c := report.Coverage

	var b strings.Builder
	fmt.Fprintf(&b, `Summarize this linkage report in 3-4 sentences.

RULES:
1. The only image ids you may mention are:
%s
2. Do not invent objects, images or dates.
3. Describe fuzzy matches as text similarity, never as a physical relation.

Report: %s
- Observations: %d, images: %d
- Exact date links: %d (%.0f%%)
- Fuzzy matches: %d (%.0f%%, mean score %.2f, threshold %.2f)
- Unmatched: %d (%.0f%%)
- Records skipped as malformed: %d

Signals:
`, joinIDs(allowedIDs, imageTitles(l.Images)), report.Subject,
		l.Stats.Observations, l.Stats.Images,
		l.Stats.ExactLinks, c.ExactRatio*100,
		l.Stats.FuzzyMatched, c.FuzzyRatio*100, c.MeanFuzzyScore, l.Threshold,
		l.Stats.Unmatched, c.UnmatchedRatio*100,
		l.Stats.Malformed)

	for i, signal := range c.Signals {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", signal.Type, signal.Severity, signal.Description)
	}

	if len(report.Daily) > 0 {
		b.WriteString("\nBusiest days:\n")
		for _, d := range busiestDays(report.Daily, 3) {
			fmt.Fprintf(&b, "- %s: %d objects, %d hazardous, largest %.3f km\n", d.Date, d.Count, d.Hazardous, d.LargestKM)
		}
	}

	return b.String()
}

// AllowedImageIDs returns the ids of every image in the report.
func AllowedImageIDs(report model.Report) []string {
	ids := make([]string, 0, len(report.Linkage.Images))
	for _, img := range report.Linkage.Images {
		ids = append(ids, img.ID)
	}
	return ids
}

func joinIDs(ids []string, titles map[string]string) string {
	if len(ids) == 0 {
		return "(no images in this report)"
	}
	var b strings.Builder
	for i, id := range ids {
		if i >= maxPromptImages {
			fmt.Fprintf(&b, "\n... and %d more images", len(ids)-maxPromptImages)
			break
		}
		fmt.Fprintf(&b, "\n- %s", id)
		if t := titles[id]; t != "" {
			fmt.Fprintf(&b, " (%s)", t)
		}
	}
	return b.String()
}

func imageTitles(images []model.ImageRecord) map[string]string {
	out := make(map[string]string, len(images))
	for _, img := range images {
		out[img.ID] = img.Title
	}
	return out
}

func busiestDays(days []model.DailySummary, n int) []model.DailySummary {
	sorted := append([]model.DailySummary(nil), days...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

var imageIDPattern = regexp.MustCompile(`\bapod-\d{4}-\d{2}-\d{2}\b`)

// extractImageIDs returns the image ids mentioned in text, in order of first
// appearance.
func extractImageIDs(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range imageIDPattern.FindAllString(text, -1) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// checkCitations extracts the cited ids and, in strict mode, rejects any
// that are not allowed.
func checkCitations(summary string, allowed []string, strict bool) ([]string, error) {
	cited := extractImageIDs(summary)
	if !strict {
		return cited, nil
	}
	for _, id := range cited {
		if !contains(allowed, id) {
			return nil, fmt.Errorf("%w: narrative mentions unknown image %s", ErrCitationLeak, id)
		}
	}
	return cited, nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func resolveModel(req SummarizeRequest, cfg Config, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return fallback
}

func resolveMaxTokens(req SummarizeRequest, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 800
}

func resolvePrompt(req SummarizeRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	return BuildPrompt(req.Report, req.AllowedImageIDs)
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// httpClient builds the client for the raw HTTP providers.
func (c Config) httpClient() *http.Client {
	return util.NewHTTPClient(c.timeout(), 0, c.HTTPProxy, c.HTTPSProxy, c.NoProxy)
}
