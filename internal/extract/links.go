package extract

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// LinkKind classifies a reference found on an archive page.
type LinkKind string

const (
	LinkImage LinkKind = "image" // <img src> or <a href> to an image file
	LinkVideo LinkKind = "video" // <iframe src> or a video file
	LinkPage  LinkKind = "page"
)

// Link is one resolved reference from a page.
type Link struct {
	URL  string
	Kind LinkKind
	Text string
}

// Links collects anchors, images and embedded frames under n, resolved
// against base. Duplicates keep their first occurrence.
func Links(n *html.Node, base *url.URL) []Link {
	var links []Link

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			var ref string
			switch n.Data {
			case "a":
				ref = Attr(n, "href")
			case "img", "iframe", "source":
				ref = Attr(n, "src")
			}
			if resolved := resolveURL(base, strings.TrimSpace(ref)); resolved != "" {
				links = append(links, Link{
					URL:  resolved,
					Kind: classifyLink(n.Data, resolved),
					Text: NodeText(n),
				})
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return dedupeLinks(links)
}

// resolveURL resolves a relative URL against a base URL
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}

	// Only keep http/https URLs
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}

var (
	imageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".tif": true, ".tiff": true, ".webp": true}
	videoExt = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".m4v": true}
)

func classifyLink(tag, resolved string) LinkKind {
	switch tag {
	case "img":
		return LinkImage
	case "iframe", "source":
		return LinkVideo
	}

	u, err := url.Parse(resolved)
	if err != nil {
		return LinkPage
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case imageExt[ext]:
		return LinkImage
	case videoExt[ext]:
		return LinkVideo
	}
	return LinkPage
}

func dedupeLinks(links []Link) []Link {
	seen := make(map[string]bool)
	var unique []Link

	for _, l := range links {
		if !seen[l.URL] {
			seen[l.URL] = true
			unique = append(unique, l)
		}
	}

	return unique
}
