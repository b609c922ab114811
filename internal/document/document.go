// Package document defines the canonical, platform-neutral representation of
// one post: YAML front matter followed by a body fragment, stored as a
// single file per post.
package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/hearth/internal/apperr"
)

const delim = "---"

// Author is the URL identity triple of a post's author.
type Author struct {
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	DisplayName string `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Handle      string `yaml:"handle,omitempty" json:"handle,omitempty"`
}

// Meta is the structured front matter of a canonical document.
type Meta struct {
	// Origin links back to the external post this document was imported
	// from. Empty for composed posts.
	Origin string `yaml:"origin,omitempty" json:"origin,omitempty"`

	// References lists the storage paths of posts this post replies to or
	// shares, in thread order. Resolved one level deep, never transitively.
	References []string `yaml:"references,omitempty" json:"references,omitempty"`

	Title     string   `yaml:"title,omitempty" json:"title,omitempty"`
	Published string   `yaml:"published,omitempty" json:"published,omitempty"`
	Author    *Author  `yaml:"author,omitempty" json:"author,omitempty"`
	Tags      []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Transparent suppresses body rendering: the post exists only to carry
	// its references (a share with no commentary).
	Transparent bool `yaml:"transparent,omitempty" json:"transparent,omitempty"`
}

// Document is one canonical post. Identity is its storage path; mutation is
// whole-document replace.
type Document struct {
	Path string
	Meta Meta

	// Body is the markdown or pre-sanitized HTML fragment after the front
	// matter.
	Body string
}

// PublishedTime parses the published timestamp, returning the zero time when
// absent or unparseable.
func (d *Document) PublishedTime() time.Time {
	if d.Meta.Published == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, d.Meta.Published)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsMarkdown reports whether the document body is markdown rather than a
// pre-sanitized HTML fragment.
func (d *Document) IsMarkdown() bool {
	return strings.HasSuffix(d.Path, ".md")
}

// Parse splits raw file content into front matter and body. A file without a
// leading front matter block is all body; a front matter block that fails to
// decode is a malformed-input error.
func Parse(path string, data []byte) (*Document, error) {
	doc := &Document{Path: path}

	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		doc.Body = string(data)
		return doc, nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		doc.Body = string(data)
		return doc, nil
	}

	if err := yaml.Unmarshal(rest[:idx], &doc.Meta); err != nil {
		return nil, fmt.Errorf("document: %s: front matter: %w: %v", path, apperr.ErrMalformed, err)
	}
	doc.Body = strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return doc, nil
}

// Encode renders the document back to its on-disk form.
func (d *Document) Encode() ([]byte, error) {
	fm, err := yaml.Marshal(&d.Meta)
	if err != nil {
		return nil, fmt.Errorf("document: %s: encode front matter: %w", d.Path, err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.WriteByte('\n')
	buf.Write(fm)
	buf.WriteString(delim)
	buf.WriteString("\n\n")
	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}
