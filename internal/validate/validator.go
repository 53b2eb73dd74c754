package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/skylink/internal/model"
)

const validateMaxRetries = 3

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// MediaChecker probes image media URLs concurrently with HEAD requests.
type MediaChecker struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string
}

// NewMediaChecker creates a checker using client, which should carry the
// configured proxy and redirect policy.
func NewMediaChecker(client *http.Client, maxWorkers int, userAgent string) *MediaChecker {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &MediaChecker{
		httpClient: client,
		maxWorkers: maxWorkers,
		userAgent:  userAgent,
	}
}

// Check probes the media URL of every image, in input order. Images without
// a media URL are reported as inaccessible without a request.
func (v *MediaChecker) Check(ctx context.Context, images []model.ImageRecord) []model.MediaStatus {
	if len(images) == 0 {
		return []model.MediaStatus{}
	}

	results := make([]model.MediaStatus, len(images))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, v.maxWorkers)

	for i, img := range images {
		wg.Add(1)
		go func(idx int, img model.ImageRecord) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = baseStatus(img)
				results[idx].Error = "context cancelled"
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.checkWithRetry(ctx, img)
		}(i, img)
	}

	wg.Wait()

	return results
}

func baseStatus(img model.ImageRecord) model.MediaStatus {
	return model.MediaStatus{
		ImageID:    img.ID,
		URL:        img.MediaURL,
		Kind:       ClassifyMedia(img.MediaURL, img.MediaType),
		NASAHosted: IsNASAHosted(img.MediaURL),
	}
}

// checkSingle probes one image's media URL
func (v *MediaChecker) checkSingle(ctx context.Context, img model.ImageRecord) model.MediaStatus {
	status := baseStatus(img)
	if img.MediaURL == "" {
		status.Error = "no media url"
		return status
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, img.MediaURL, nil)
	if err != nil {
		status.Error = fmt.Sprintf("create request: %v", err)
		status.Dead = true
		return status
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("request failed: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.StatusCode = resp.StatusCode

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		status.Accessible = true
	} else if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		status.Dead = true
	}

	if final := resp.Request.URL.String(); final != img.MediaURL {
		status.RedirectURL = final
	}

	return status
}

// checkWithRetry retries transient failures with exponential backoff
func (v *MediaChecker) checkWithRetry(ctx context.Context, img model.ImageRecord) model.MediaStatus {
	var status model.MediaStatus
	for attempt := 0; attempt < validateMaxRetries; attempt++ {
		status = v.checkSingle(ctx, img)
		if !isRetryableStatus(status) || ctx.Err() != nil {
			return status
		}
		if attempt < validateMaxRetries-1 {
			validateSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return status
}

// isRetryableStatus returns true for results that indicate transient failures
func isRetryableStatus(status model.MediaStatus) bool {
	if status.StatusCode >= 500 && status.StatusCode < 600 {
		return true
	}
	if status.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if status.StatusCode == 0 && status.Error != "" {
		return isRetryableNetworkError(status.Error)
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// MediaNotes turns failed probes into data-quality notes.
func MediaNotes(statuses []model.MediaStatus) []model.Note {
	var notes []model.Note
	for _, s := range statuses {
		if s.Accessible {
			continue
		}
		msg := fmt.Sprintf("media unavailable: %s", s.URL)
		if s.StatusCode != 0 {
			msg = fmt.Sprintf("media unavailable (HTTP %d): %s", s.StatusCode, s.URL)
		} else if s.Error != "" {
			msg = fmt.Sprintf("media unavailable: %s", s.Error)
		}
		notes = append(notes, model.Note{
			Kind:     model.NoteMediaUnavailable,
			Severity: model.SeverityWarning,
			RecordID: s.ImageID,
			Message:  msg,
		})
	}
	return notes
}
