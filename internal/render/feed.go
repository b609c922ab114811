package render

import (
	"encoding/xml"
	"fmt"

	"github.com/starford/hearth/internal/document"
)

// Atom feed construction. Feeds carry the simple thread renderings so feed
// readers get the collapsed form. The updated stamp is the newest entry's
// published time, never the wall clock, so an unchanged corpus produces a
// byte-identical feed.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string         `xml:"title"`
	ID        string         `xml:"id"`
	Published string         `xml:"published,omitempty"`
	Updated   string         `xml:"updated,omitempty"`
	Link      atomLink       `xml:"link"`
	Author    *atomAuthor    `xml:"author,omitempty"`
	Category  []atomCategory `xml:"category,omitempty"`
	Content   atomContent    `xml:"content"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// feedEntry is one thread prepared for feed output.
type feedEntry struct {
	thread *document.Thread
	href   string
	simple []byte
}

func atomFeedXML(feedTitle string, entries []feedEntry) ([]byte, error) {
	feed := atomFeed{
		Xmlns: "http://www.w3.org/2005/Atom",
		Title: feedTitle,
	}
	for _, e := range entries {
		meta := e.thread.Meta()
		entry := atomEntry{
			Title:     e.thread.OverallTitle(),
			ID:        e.href,
			Published: meta.Published,
			Updated:   meta.Published,
			Link:      atomLink{Href: e.href},
			Content:   atomContent{Type: "html", Body: string(e.simple)},
		}
		if meta.Author != nil {
			entry.Author = &atomAuthor{Name: meta.Author.DisplayName, URI: meta.Author.URL}
		}
		for _, tag := range meta.Tags {
			entry.Category = append(entry.Category, atomCategory{Term: tag})
		}
		if entry.Updated > feed.Updated {
			feed.Updated = entry.Updated
		}
		feed.Entries = append(feed.Entries, entry)
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: atom feed %q: %w", feedTitle, err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
