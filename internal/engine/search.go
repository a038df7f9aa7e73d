package engine

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yuanying/epubreader/internal/cfi"
)

const ellipsis = "..."

// SearchResult is one occurrence of a query.
type SearchResult struct {
	ChapterIndex int    `json:"chapter_index"`
	ChapterID    string `json:"chapter_id"`
	ChapterHref  string `json:"chapter_href"`
	ChapterTitle string `json:"chapter_title"`
	Offset       int    `json:"offset"` // in characters from the start of the chapter text
	Match        string `json:"match"`
	Context      string `json:"context"`
	CFI          string `json:"cfi"`
}

// Search finds every case-insensitive occurrence of query in spine order.
// A blank query yields no results. Chapters that cannot be read are logged
// and skipped. Cancelling ctx stops the scan between chapters and returns the
// results found so far with the context's error.
func (b *Book) Search(ctx context.Context, query string) ([]SearchResult, error) {
	log := logger.FromContext(ctx)

	results := []SearchResult{}
	query = strings.TrimSpace(query)
	if query == "" {
		return results, nil
	}

	for i, item := range b.doc.Spine {
		if err := ctx.Err(); err != nil {
			return results, errors.WithStack(err)
		}

		text, err := b.chapterText(i)
		if err != nil {
			log.Warn("skipping unreadable chapter", logger.Data{
				"index": i,
				"href":  item.Href,
				"error": err.Error(),
			})
			continue
		}

		for _, m := range findMatches(text, query, b.opts.SearchContext) {
			results = append(results, SearchResult{
				ChapterIndex: i,
				ChapterID:    item.IDRef,
				ChapterHref:  item.Href,
				ChapterTitle: b.ChapterTitle(i),
				Offset:       m.offset,
				Match:        m.text,
				Context:      m.context,
				CFI:          cfi.At(i, m.offset).String(),
			})
			if b.opts.SearchLimit > 0 && len(results) >= b.opts.SearchLimit {
				return results, nil
			}
		}
	}

	return results, nil
}

type match struct {
	offset  int
	text    string
	context string
}

// findMatches returns the non-overlapping occurrences of query in text.
// Offsets count runes. Context keeps up to n runes on each side, marked with
// an ellipsis where the text continues beyond it.
func findMatches(text, query string, n int) []match {
	hay := []rune(text)
	needle := []rune(query)
	if len(needle) == 0 || len(needle) > len(hay) {
		return nil
	}
	n = max(0, min(n, len(hay)))
	lowerHay := lowerRunes(hay)
	lowerNeedle := lowerRunes(needle)

	var out []match
	for i := 0; i+len(needle) <= len(hay); {
		if !runesEqual(lowerHay[i:i+len(needle)], lowerNeedle) {
			i++
			continue
		}
		end := i + len(needle)
		start := max(0, i-n)
		stop := min(len(hay), end+n)

		var ctx strings.Builder
		if start > 0 {
			ctx.WriteString(ellipsis)
		}
		ctx.WriteString(string(hay[start:stop]))
		if stop < len(hay) {
			ctx.WriteString(ellipsis)
		}

		out = append(out, match{offset: i, text: string(hay[i:end]), context: ctx.String()})
		i = end
	}
	return out
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
