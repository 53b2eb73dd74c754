package link

import (
	"sort"

	"github.com/ppiankov/skylink/internal/extract"
	"github.com/ppiankov/skylink/internal/model"
)

// imageIndex holds pre-tokenized images and an inverted token index over them.
// It is read-only after construction and shared by all matching workers.
type imageIndex struct {
	ids      []string
	tokens   []extract.TokenSet
	postings map[string][]int
}

// newImageIndex indexes images in input order. A repeated image id keeps
// its first record, so one image never fills two candidate slots.
func newImageIndex(images []model.ImageRecord, withPostings bool) *imageIndex {
	ix := &imageIndex{
		ids:    make([]string, 0, len(images)),
		tokens: make([]extract.TokenSet, 0, len(images)),
	}
	if withPostings {
		ix.postings = make(map[string][]int)
	}

	seen := make(map[string]bool, len(images))
	for _, img := range images {
		if seen[img.ID] {
			continue
		}
		seen[img.ID] = true

		pos := len(ix.ids)
		ix.ids = append(ix.ids, img.ID)
		ix.tokens = append(ix.tokens, extract.TokenizeAll(img.Title, img.Explanation))
		if ix.postings == nil {
			continue
		}
		for tok := range ix.tokens[pos] {
			ix.postings[tok] = append(ix.postings[tok], pos)
		}
	}
	return ix
}

func (ix *imageIndex) len() int {
	return len(ix.ids)
}

// sharing returns the positions of images with at least one token in common
// with q, in ascending order.
func (ix *imageIndex) sharing(q extract.TokenSet) []int {
	seen := make(map[int]struct{})
	for tok := range q {
		for _, pos := range ix.postings[tok] {
			seen[pos] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for pos := range seen {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
