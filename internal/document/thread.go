package document

import "strings"

// Thread is an ordered chain of documents sharing ancestry: the referenced
// posts from top to bottom, then the top-level post itself. Threads are not
// independently persisted; they are derived from a document's references.
type Thread struct {
	// Path is the storage path of the top-level document.
	Path string

	// Posts holds the referenced documents in front matter order followed
	// by the top-level document.
	Posts []*Document
}

// Loader resolves a storage path to a parsed document.
type Loader func(path string) (*Document, error)

// Assemble builds the thread for a top-level document, resolving each
// reference exactly one level deep. A reference that fails to load is
// skipped; the thread degrades rather than failing.
func Assemble(top *Document, load Loader) *Thread {
	t := &Thread{Path: top.Path}
	for _, ref := range top.Meta.References {
		doc, err := load(ref)
		if err != nil {
			continue
		}
		t.Posts = append(t.Posts, doc)
	}
	t.Posts = append(t.Posts, top)
	return t
}

// Last returns the top-level post of the thread.
func (t *Thread) Last() *Document {
	return t.Posts[len(t.Posts)-1]
}

// Meta returns the thread's effective metadata: the top-level post's meta,
// except that a transparent share with no title falls back to the first
// referenced post that has one.
func (t *Thread) Meta() Meta {
	meta := t.Last().Meta
	if meta.Title == "" {
		for _, p := range t.Posts {
			if p.Meta.Title != "" {
				meta.Title = p.Meta.Title
				break
			}
		}
	}
	return meta
}

// OverallTitle derives a display title for listings.
func (t *Thread) OverallTitle() string {
	if title := t.Meta().Title; title != "" {
		return title
	}
	return strings.TrimSuffix(strings.TrimSuffix(t.Path, ".md"), ".html")
}

// RenderedFilename maps the document path to its output page name.
func (t *Thread) RenderedFilename() string {
	name := strings.TrimSuffix(t.Path, ".md")
	name = strings.TrimSuffix(name, ".html")
	return name + ".html"
}

// ReverseChronological orders threads newest first, breaking ties by path so
// listings are reproducible across runs.
func ReverseChronological(a, b *Thread) int {
	at, bt := a.Last().PublishedTime(), b.Last().PublishedTime()
	switch {
	case at.After(bt):
		return -1
	case bt.After(at):
		return 1
	default:
		return strings.Compare(a.Path, b.Path)
	}
}
