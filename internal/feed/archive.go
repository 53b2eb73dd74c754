package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/skylink/internal/extract"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/util"
)

// ErrDisallowed is returned when robots.txt forbids fetching an archive page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ArchiveClient scrapes the APOD HTML archive, one page per day
// ({base}/apYYMMDD.html). It needs no API key.
type ArchiveClient struct {
	fetcher *Fetcher
	baseURL string
	robots  *util.RobotsPolicy
	logger  *slog.Logger
}

// NewArchiveClient creates an archive scraper that honours robots.txt.
func NewArchiveClient(f *Fetcher, baseURL string, logger *slog.Logger) *ArchiveClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveClient{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		robots:  util.NewRobotsPolicy(f.Robots, f.UserAgent()),
		logger:  logger,
	}
}

// PageURL is the archive page for day d.
func (c *ArchiveClient) PageURL(d model.Day) (string, error) {
	t, err := d.Time()
	if err != nil {
		return "", err
	}
	return c.baseURL + "/ap" + t.Format("060102") + ".html", nil
}

// Images scrapes every day in r. Days without a page (404) are skipped.
func (c *ArchiveClient) Images(ctx context.Context, r model.DateRange) ([]model.ImageRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var images []model.ImageRecord
	for d := r.From; !r.To.Before(d); d = d.AddDays(1) {
		img, err := c.Image(ctx, d)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				c.logger.Warn("no archive page", "date", d)
				continue
			}
			return nil, err
		}
		images = append(images, *img)
	}
	return images, nil
}

// Image scrapes the archive page for day d.
func (c *ArchiveClient) Image(ctx context.Context, d model.Day) (*model.ImageRecord, error) {
	pageURL, err := c.PageURL(d)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", d, err)
	}

	allowed, rules, fresh, err := c.robots.Check(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", d, err)
	}
	if fresh && rules.CrawlDelay > 0 {
		c.logger.Info("honouring archive crawl delay", "delay", rules.CrawlDelay)
		c.fetcher.Throttle(pageURL, rules.CrawlDelay)
	}
	if !allowed {
		return nil, fmt.Errorf("archive %s: %w", d, ErrDisallowed)
	}

	body, err := c.fetcher.Get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", d, err)
	}

	img, err := ParseArchivePage(body, pageURL, d)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", d, err)
	}
	return img, nil
}

// ParseArchivePage extracts an image record from an APOD archive page.
//
// Pages put the date and media in the first <center>, the title and credit
// in the second, and the text after a bold "Explanation:" label.
func ParseArchivePage(body []byte, pageURL string, d model.Day) (*model.ImageRecord, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	img := &model.ImageRecord{ID: ImageID(d), Date: d}

	centers := elements(doc, "center")
	if len(centers) > 0 {
		img.MediaType, img.MediaURL, img.HDURL = archiveMedia(extract.Links(centers[0], base))
	}
	if len(centers) > 1 {
		img.Title = extract.NodeText(extract.FindElement(centers[1], "b"))
		img.Copyright = archiveCredit(extract.NodeText(centers[1]))
	}
	if img.Title == "" {
		img.Title = strings.TrimSpace(strings.TrimPrefix(extract.NodeText(extract.FindElement(doc, "title")), "APOD:"))
		if i := strings.Index(img.Title, " - "); i >= 0 {
			img.Title = strings.TrimSpace(img.Title[i+3:])
		}
	}
	img.Explanation = archiveExplanation(doc)

	if img.Title == "" && img.Explanation == "" {
		return nil, fmt.Errorf("parse page: no title or explanation found")
	}
	return img, nil
}

// archiveMedia picks the displayed media and the full-size link.
func archiveMedia(links []extract.Link) (mediaType, mediaURL, hdURL string) {
	for _, l := range links {
		switch l.Kind {
		case extract.LinkVideo:
			if mediaURL == "" {
				return "video", l.URL, ""
			}
		case extract.LinkImage:
			// The anchor to the large image precedes the inline <img>.
			if hdURL == "" && l.Text == "" && mediaURL == "" {
				hdURL = l.URL
				continue
			}
			if mediaURL == "" {
				mediaURL = l.URL
			}
		}
	}
	if mediaURL == "" && hdURL != "" {
		mediaURL, hdURL = hdURL, ""
	}
	if mediaURL == "" {
		return "other", "", ""
	}
	if hdURL == mediaURL {
		hdURL = ""
	}
	return "image", mediaURL, hdURL
}

// archiveCredit returns the text following the first "Credit" label.
func archiveCredit(text string) string {
	i := strings.Index(text, "Credit")
	if i < 0 {
		return ""
	}
	rest := text[i:]
	j := strings.Index(rest, ":")
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[j+1:])
}

func archiveExplanation(doc *html.Node) string {
	for _, b := range elements(doc, "b") {
		if !strings.HasPrefix(extract.NodeText(b), "Explanation") || b.Parent == nil {
			continue
		}
		text := extract.NodeText(b.Parent)
		if i := strings.Index(text, "Explanation:"); i >= 0 {
			text = text[i+len("Explanation:"):]
		}
		return strings.TrimSpace(text)
	}
	return ""
}

// elements returns every element named tag under n in document order.
func elements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
