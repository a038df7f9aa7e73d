package engine

import (
	"github.com/yuanying/epubreader/internal/content"
)

// Chapter is a sanitized spine item ready for rendering.
type Chapter struct {
	Index  int
	ID     string
	Href   string
	Title  string
	HTML   string            // sanitized markup, body content only
	CSS    string            // combined and scrubbed stylesheets
	Images map[string][]byte // archive path -> bytes, for every readable image the markup references
	Text   string            // plain text as used by Search
}

// Chapter resolves spine item i. Results are cached.
func (b *Book) Chapter(i int) (*Chapter, error) {
	b.mu.Lock()
	if c, ok := b.chapters[i]; ok {
		b.mu.Unlock()
		return c, nil
	}
	b.mu.Unlock()

	c, err := b.loadChapter(i)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cached, ok := b.chapters[i]; ok {
		return cached, nil
	}
	b.chapters[i] = c
	if c.Text != "" {
		b.texts[i] = c.Text
	}
	return c, nil
}

func (b *Book) loadChapter(i int) (*Chapter, error) {
	raw, err := b.doc.ReadChapter(i)
	if err != nil {
		return nil, err
	}
	item := b.doc.Spine[i]

	c := &Chapter{
		Index:  i,
		ID:     item.IDRef,
		Href:   item.Href,
		Title:  b.ChapterTitle(i),
		Images: map[string][]byte{},
	}

	page, err := content.Parse(item.Href, raw)
	if err != nil {
		c.HTML = content.Sanitize(string(raw))
		return c, nil
	}

	page.Sanitize()
	if c.HTML, err = page.HTML(); err != nil {
		c.HTML = content.Sanitize(string(raw))
	}
	c.Text = content.PlainText(page.Document)

	a := b.doc.Archive()
	for _, ref := range page.Images {
		if data, err := a.Read(ref); err == nil {
			c.Images[ref] = data
		}
	}
	c.CSS = content.CombineCSS(page.Stylesheets, page.InlineCSS, page.Dir(), a.Read)

	return c, nil
}

// chapterText returns the plain text of spine item i without resolving its
// images or stylesheets.
func (b *Book) chapterText(i int) (string, error) {
	b.mu.Lock()
	if t, ok := b.texts[i]; ok {
		b.mu.Unlock()
		return t, nil
	}
	b.mu.Unlock()

	raw, err := b.doc.ReadChapter(i)
	if err != nil {
		return "", err
	}
	text, err := content.TextOf(raw)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.texts[i] = text
	b.mu.Unlock()
	return text, nil
}
