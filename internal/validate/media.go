package validate

import (
	"net/url"
	"path"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// nasaHosts are the domains APOD serves its own media from.
var nasaHosts = []string{"nasa.gov"}

// videoHosts embed APOD's video entries.
var videoHosts = []string{"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com"}

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".tif": true, ".tiff": true, ".webp": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".m4v": true}
)

// ClassifyMedia infers the media kind of a URL from the declared APOD
// media_type first, then from its host and file extension.
func ClassifyMedia(rawURL, declared string) model.MediaKind {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "image":
		return model.MediaImage
	case "video":
		return model.MediaVideo
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.MediaOther
	}

	if hostMatches(hostname(parsed), videoHosts) {
		return model.MediaVideo
	}

	ext := strings.ToLower(path.Ext(parsed.Path))
	switch {
	case imageExts[ext]:
		return model.MediaImage
	case videoExts[ext]:
		return model.MediaVideo
	}
	return model.MediaOther
}

// IsNASAHosted reports whether rawURL points at a nasa.gov host.
func IsNASAHosted(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return hostMatches(hostname(parsed), nasaHosts)
}

// hostname strips the port.
func hostname(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}

// hostMatches reports whether host equals or is a subdomain of one of domains.
func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
