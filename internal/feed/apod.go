package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// apodWindowDays bounds a single APOD request; long ranges are fetched in
// consecutive windows.
const apodWindowDays = 31

// ImageSource yields image records for a date range.
type ImageSource interface {
	Images(ctx context.Context, r model.DateRange) ([]model.ImageRecord, error)
}

// APODClient reads the APOD API at {base}/planetary/apod.
type APODClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

// NewAPODClient creates an APOD API client.
func NewAPODClient(f *Fetcher, baseURL, apiKey string) *APODClient {
	return &APODClient{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKeyOrDemo(apiKey),
	}
}

type apodItem struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	MediaType   string `json:"media_type"`
	Copyright   string `json:"copyright"`
}

// Images returns one record per published day in r, sorted by date.
func (c *APODClient) Images(ctx context.Context, r model.DateRange) ([]model.ImageRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var images []model.ImageRecord
	for _, window := range r.Split(apodWindowDays) {
		body, err := c.fetcher.Get(ctx, c.rangeURL(window), "application/json")
		if err != nil {
			return nil, fmt.Errorf("apod %s: %w", window, err)
		}
		items, err := decodeAPOD(body)
		if err != nil {
			return nil, fmt.Errorf("apod %s: %w", window, err)
		}
		for _, it := range items {
			images = append(images, it.record())
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Date < images[j].Date
	})
	return images, nil
}

func (c *APODClient) rangeURL(r model.DateRange) string {
	q := url.Values{}
	q.Set("start_date", r.From.String())
	q.Set("end_date", r.To.String())
	q.Set("thumbs", "true")
	q.Set("api_key", c.apiKey)
	return c.baseURL + "/planetary/apod?" + q.Encode()
}

// decodeAPOD accepts both the list form (date ranges) and the single-object
// form (one date).
func decodeAPOD(body []byte) ([]apodItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode: empty response")
	}
	if trimmed[0] == '{' {
		var one apodItem
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return []apodItem{one}, nil
	}
	var items []apodItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return items, nil
}

// ImageID is the stable id given to the APOD entry for day d.
func ImageID(d model.Day) string {
	return "apod-" + d.String()
}

func (it apodItem) record() model.ImageRecord {
	day := model.Day(strings.TrimSpace(it.Date))
	return model.ImageRecord{
		ID:          ImageID(day),
		Date:        day,
		Title:       strings.TrimSpace(it.Title),
		Explanation: strings.TrimSpace(it.Explanation),
		MediaURL:    it.URL,
		HDURL:       it.HDURL,
		MediaType:   it.MediaType,
		Copyright:   strings.Join(strings.Fields(it.Copyright), " "),
	}
}

func apiKeyOrDemo(key string) string {
	if strings.TrimSpace(key) == "" {
		return "DEMO_KEY"
	}
	return strings.TrimSpace(key)
}

// flexFloat decodes numbers NeoWs publishes either as JSON numbers or as
// numeric strings. Empty strings and null decode to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
