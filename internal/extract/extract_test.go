package extract

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"whitespace only", "  \t\n", []string{}},
		{"designation", "(2011 GO27)", []string{"2011", "go27"}},
		{"punctuation stripped", "M77: Spiral Galaxy", []string{"galaxy", "m77", "spiral"}},
		{"stop words kept", "the moon and the sun", []string{"and", "moon", "sun", "the"}},
		{"single letters kept", "a b c", []string{"a", "b", "c"}},
		{"underscore separates", "neo_item", []string{"item", "neo"}},
		{"case folded", "ORION Orion orion", []string{"orion"}},
		{"fullwidth normalised", "ＡＰＯＤ", []string{"apod"}},
		{"ligature normalised", "ﬁre", []string{"fire"}},
		{"non-latin letters", "Луна", []string{"луна"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in).Slice()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	text := "Comet C/2025 A6 (Lemmon) over the Dolomites"
	first := Tokenize(text).Slice()
	for i := 0; i < 20; i++ {
		if got := Tokenize(text).Slice(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestTokenizeAll(t *testing.T) {
	set := TokenizeAll("Orion Nebula", "Stars form in Orion.")
	for _, tok := range []string{"orion", "nebula", "stars", "form", "in"} {
		if !set.Has(tok) {
			t.Errorf("expected token %q in %v", tok, set.Slice())
		}
	}
	if set.Len() != 5 {
		t.Errorf("expected 5 tokens, got %d", set.Len())
	}
}

func TestNewTokenSet_SkipsEmpty(t *testing.T) {
	set := NewTokenSet("a", "", "a", "b")
	if set.Len() != 2 {
		t.Errorf("expected 2 tokens, got %v", set.Slice())
	}
}

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Orion   rises  ", "Orion rises"},
		{"entities", "Sun &amp; Moon", "Sun & Moon"},
		{"inline markup", "The <b>Horsehead</b> <a href=\"x\">Nebula</a>", "The Horsehead Nebula"},
		{"script skipped", "<p>Visible</p><script>var x = 1;</script>", "Visible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VisibleText(tt.in); got != tt.want {
				t.Errorf("VisibleText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVisibleText_SkipInvisibleElements(t *testing.T) {
	page := `
	<html>
	<head>
		<script>var x = "script content";</script>
		<style>body { color: red; }</style>
	</head>
	<body>
		<p>Visible paragraph text.</p>
		<noscript>Noscript content</noscript>
		<iframe src="example.com">Iframe content</iframe>
		<p>Another visible paragraph.</p>
	</body>
	</html>
	`

	text := VisibleText(page)

	if !strings.Contains(text, "Visible paragraph") || !strings.Contains(text, "Another visible paragraph") {
		t.Errorf("expected visible paragraphs, got %q", text)
	}
	for _, hidden := range []string{"script content", "color: red", "Noscript content", "Iframe content"} {
		if strings.Contains(text, hidden) {
			t.Errorf("should not extract %q", hidden)
		}
	}
}

func TestLinks(t *testing.T) {
	page := `
	<html><body>
		<a href="image/2512/orion_big.jpg"><img src="image/2512/orion_1024.jpg"></a>
		<a href="#top">top</a>
		<a href="mailto:apod@example.com">mail</a>
		<a href="archivepix.html">Archive</a>
		<iframe src="https://www.youtube.com/embed/abc"></iframe>
		<a href="archivepix.html">Archive again</a>
	</body></html>
	`
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, _ := url.Parse("https://apod.nasa.gov/apod/ap251202.html")

	links := Links(doc, base)

	want := []Link{
		{URL: "https://apod.nasa.gov/apod/image/2512/orion_big.jpg", Kind: LinkImage},
		{URL: "https://apod.nasa.gov/apod/image/2512/orion_1024.jpg", Kind: LinkImage},
		{URL: "https://apod.nasa.gov/apod/archivepix.html", Kind: LinkPage, Text: "Archive"},
		{URL: "https://www.youtube.com/embed/abc", Kind: LinkVideo},
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %+v", len(want), len(links), links)
	}
	for i := range want {
		if links[i].URL != want[i].URL || links[i].Kind != want[i].Kind || links[i].Text != want[i].Text {
			t.Errorf("link %d = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://apod.nasa.gov/apod/ap251202.html")

	tests := []struct {
		href string
		want string
	}{
		{"https://example.com/a", "https://example.com/a"},
		{"image/x.jpg", "https://apod.nasa.gov/apod/image/x.jpg"},
		{"/apod/astropix.html", "https://apod.nasa.gov/apod/astropix.html"},
		{"#anchor", ""},
		{"javascript:void(0)", ""},
		{"ftp://example.com/file", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := resolveURL(base, tt.href); got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
