package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/hearth/internal/apperr"
	"github.com/starford/hearth/internal/emotes"
)

// Attributes that carry URLs, per element. Only these are rewritten; any
// other attribute keeps its value byte for byte.
var urlAttributes = map[string][]string{
	"a":      {"href"},
	"img":    {"src"},
	"audio":  {"src"},
	"video":  {"src", "poster"},
	"source": {"src"},
	"link":   {"href"},
}

var emotePattern = regexp.MustCompile(`:([a-z0-9-]+):`)

// rewriteFragment parses an HTML fragment, rewrites every remote media URL
// (URL attributes, url() tokens in inline styles, emote shortcodes in text)
// to a local attachment reference, and serializes it back. Original URLs are
// preserved in data-origin-* attributes.
func (e *Extractor) rewriteFragment(ctx context.Context, fragment string) (string, error) {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		return "", fmt.Errorf("extract: parse fragment: %v: %w", err, apperr.ErrMalformed)
	}

	for _, n := range nodes {
		container.AppendChild(n)
	}
	e.rewriteChildren(ctx, container)

	var b strings.Builder
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", fmt.Errorf("extract: serialize fragment: %w", err)
		}
	}
	return b.String(), nil
}

// rewriteChildren walks parent's children, replacing platform-specific
// elements and splicing emote images into text nodes. Children are snapshot
// first because replacements mutate the sibling chain.
func (e *Extractor) rewriteChildren(ctx context.Context, parent *html.Node) {
	var kids []*html.Node
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		kids = append(kids, c)
	}

	for _, kid := range kids {
		switch kid.Type {
		case html.TextNode:
			e.rewriteTextNode(ctx, parent, kid)
		case html.ElementNode:
			replacement := e.rewriteElement(ctx, kid)
			if replacement != kid {
				parent.InsertBefore(replacement, kid)
				parent.RemoveChild(kid)
			}
			e.rewriteChildren(ctx, replacement)
		}
	}
}

// rewriteElement rewrites one element in place, or returns a replacement
// node (mentions become links, custom emoji become images).
func (e *Extractor) rewriteElement(ctx context.Context, n *html.Node) *html.Node {
	// The fragment parser lowercases custom element names.
	switch n.Data {
	case "mention":
		if handle := attrValue(n, "handle"); handle != "" {
			a := &html.Node{Type: html.ElementNode, Data: "a", DataAtom: atom.A}
			a.Attr = []html.Attribute{{Key: "href", Val: e.origin + "/" + handle}}
			adoptChildren(a, n)
			return a
		}
	case "customemoji":
		return e.rewriteCustomEmoji(ctx, n)
	}

	e.rewriteURLAttributes(ctx, n)
	e.rewriteStyleAttribute(ctx, n)

	if n.Data == "img" && attrValue(n, "loading") == "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "loading", Val: "lazy"})
	}
	return n
}

// rewriteURLAttributes redirects remote media URLs to the attachment store,
// keeping the original in a data-origin-* attribute.
func (e *Extractor) rewriteURLAttributes(ctx context.Context, n *html.Node) {
	names, ok := urlAttributes[n.Data]
	if !ok {
		return
	}
	var extra []html.Attribute
	for i := range n.Attr {
		attr := &n.Attr[i]
		if !contains(names, attr.Key) || !e.isRemote(attr.Val) {
			continue
		}
		local, err := e.attachments.Resolve(ctx, normalizeURL(attr.Val))
		if err != nil {
			e.log.Warn("leaving remote url in place", "url", attr.Val, "error", err)
			continue
		}
		if local == attr.Val {
			continue
		}
		extra = append(extra, html.Attribute{Key: "data-origin-" + attr.Key, Val: attr.Val})
		attr.Val = local
	}
	n.Attr = append(n.Attr, extra...)
}

// rewriteStyleAttribute rewrites url() tokens inside an inline style.
func (e *Extractor) rewriteStyleAttribute(ctx context.Context, n *html.Node) {
	for i := range n.Attr {
		attr := &n.Attr[i]
		if attr.Key != "style" {
			continue
		}
		tokens := parseInlineStyle(attr.Val)
		changed := false
		for j, t := range tokens {
			if t.kind != styleURL || !e.isRemote(t.value) {
				continue
			}
			local, err := e.attachments.Resolve(ctx, normalizeURL(t.value))
			if err != nil {
				e.log.Warn("leaving remote url in inline style", "url", t.value, "error", err)
				continue
			}
			if local != t.value {
				tokens[j].value = local
				changed = true
			}
		}
		if changed {
			attr.Val = serializeInlineStyle(tokens)
		}
	}
}

func (e *Extractor) rewriteCustomEmoji(ctx context.Context, n *html.Node) *html.Node {
	name := attrValue(n, "name")
	src := attrValue(n, "url")

	img := &html.Node{Type: html.ElementNode, Data: "img", DataAtom: atom.Img}
	if name != "" {
		img.Attr = append(img.Attr,
			html.Attribute{Key: "alt", Val: ":" + name + ":"},
			html.Attribute{Key: "title", Val: ":" + name + ":"},
		)
	}
	if src == "" {
		if file, ok := emotes.Lookup(name); ok {
			src = e.origin + "/static/" + file
		}
	}
	if src != "" {
		if e.isRemote(src) {
			if local, err := e.attachments.Resolve(ctx, normalizeURL(src)); err == nil {
				img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: local})
			} else {
				e.log.Warn("leaving emoji url in place", "url", src, "error", err)
				img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: src})
			}
		} else {
			img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: src})
		}
		img.Attr = append(img.Attr, html.Attribute{Key: "data-origin-url", Val: src})
	}
	img.Attr = append(img.Attr, html.Attribute{Key: "loading", Val: "lazy"})
	adoptChildren(img, n)
	return img
}

// rewriteTextNode splices emote shortcodes in a text node into inline images
// resolved through the static emote table.
func (e *Extractor) rewriteTextNode(ctx context.Context, parent, text *html.Node) {
	matches := emotePattern.FindAllStringSubmatchIndex(text.Data, -1)
	if len(matches) == 0 {
		return
	}

	var nodes []*html.Node
	last := 0
	for _, m := range matches {
		name := text.Data[m[2]:m[3]]
		file, ok := emotes.Lookup(name)
		if !ok {
			continue
		}
		if m[0] > last {
			nodes = append(nodes, &html.Node{Type: html.TextNode, Data: text.Data[last:m[0]]})
		}
		src := e.origin + "/static/" + file
		local, err := e.attachments.Resolve(ctx, src)
		if err != nil {
			e.log.Warn("leaving emote shortcode in place", "emote", name, "error", err)
			local = src
		}
		nodes = append(nodes, &html.Node{
			Type: html.ElementNode, Data: "img", DataAtom: atom.Img,
			Attr: []html.Attribute{
				{Key: "class", Val: "emote"},
				{Key: "src", Val: local},
				{Key: "alt", Val: ":" + name + ":"},
				{Key: "title", Val: ":" + name + ":"},
				{Key: "loading", Val: "lazy"},
			},
		})
		last = m[1]
	}
	if len(nodes) == 0 {
		return
	}
	if last < len(text.Data) {
		nodes = append(nodes, &html.Node{Type: html.TextNode, Data: text.Data[last:]})
	}

	for _, n := range nodes {
		parent.InsertBefore(n, text)
	}
	parent.RemoveChild(text)
}

// isRemote reports whether a URL points at the platform or its CDN.
func (e *Extractor) isRemote(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range e.remoteHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// normalizeURL applies best-effort fixes to plausible-but-sloppy attachment
// URLs: fragments dropped, doubled slashes in the path collapsed.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	for strings.Contains(u.Path, "//") {
		u.Path = strings.ReplaceAll(u.Path, "//", "/")
	}
	return u.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func adoptChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		src.RemoveChild(c)
		dst.AppendChild(c)
		c = next
	}
}
