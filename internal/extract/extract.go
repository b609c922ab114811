// Package extract converts exported platform posts into canonical documents:
// front matter plus a sanitized HTML body with all remote media rewritten to
// local attachment references.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/starford/hearth/internal/attachments"
	"github.com/starford/hearth/internal/document"
)

// Extractor turns raw exported posts into canonical documents. One extractor
// is shared across an import run; it is safe for concurrent use.
type Extractor struct {
	attachments *attachments.Store
	md          goldmark.Markdown
	log         *slog.Logger

	// origin is the base URL of the platform the posts were exported from;
	// it anchors archive links, mention links and static emote assets.
	origin      string
	remoteHosts []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOrigin sets the platform base URL, e.g. "https://cohost.org".
func WithOrigin(origin string) Option {
	return func(e *Extractor) { e.origin = strings.TrimRight(origin, "/") }
}

// WithRemoteHosts sets the host suffixes whose URLs are treated as remote
// media and rewritten to local attachment references.
func WithRemoteHosts(hosts ...string) Option {
	return func(e *Extractor) { e.remoteHosts = hosts }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// New creates an extractor backed by the given attachment store.
func New(att *attachments.Store, opts ...Option) *Extractor {
	e := &Extractor{
		attachments: att,
		// Raw HTML passes through: exported markdown embeds HTML freely and
		// the rewrite pass sanitizes what matters (URLs).
		md:          goldmark.New(goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe())),
		log:         slog.Default(),
		origin:      "https://cohost.org",
		remoteHosts: []string{"cohost.org", "cohostcdn.org"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPost converts one exported post into canonical documents: one per
// ancestor in its reply chain, then the post itself referencing them. The
// returned slice is in write order (ancestors first).
func (e *Extractor) ExtractPost(ctx context.Context, data []byte) ([]*document.Document, error) {
	post, err := ParseRawPost(data)
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, 0, len(post.Ancestors)+1)
	refs := make([]string, 0, len(post.Ancestors))
	for _, anc := range post.Ancestors {
		if anc == nil || anc.ID == 0 {
			e.log.Warn("dropping ancestor without id", "post", post.ID)
			continue
		}
		path := fmt.Sprintf("posts/%d/%d.html", post.ID, anc.ID)
		doc, err := e.convert(ctx, anc, path, nil)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		refs = append(refs, path)
	}

	doc, err := e.convert(ctx, post, fmt.Sprintf("posts/%d.html", post.ID), refs)
	if err != nil {
		return nil, err
	}
	return append(docs, doc), nil
}

func (e *Extractor) convert(ctx context.Context, post *RawPost, path string, refs []string) (*document.Document, error) {
	var body strings.Builder
	for i, block := range post.Blocks {
		fragment, err := e.renderBlock(ctx, post, block)
		if err != nil {
			// One broken block degrades to its omission; the rest of the
			// post still comes through.
			e.log.Warn("skipping block", "post", post.ID, "block", i, "error", err)
			continue
		}
		if fragment == "" {
			continue
		}
		body.WriteString(fragment)
		if !strings.HasSuffix(fragment, "\n") {
			body.WriteByte('\n')
		}
		body.WriteByte('\n')
	}

	var author *document.Author
	if post.Author != (RawAuthor{}) {
		author = &document.Author{
			URL:         post.Author.URL,
			DisplayName: post.Author.DisplayName,
			Handle:      post.Author.Handle,
		}
	}

	return &document.Document{
		Path: path,
		Meta: document.Meta{
			Origin:      e.archiveURL(post),
			References:  refs,
			Title:       post.Headline,
			Published:   post.PublishedAt,
			Author:      author,
			Tags:        post.Tags,
			Transparent: post.TransparentShare,
		},
		Body: strings.TrimRight(body.String(), "\n") + "\n",
	}, nil
}

// archiveURL reconstructs the canonical URL the post was archived from.
func (e *Extractor) archiveURL(post *RawPost) string {
	handle := post.Author.Handle
	if handle == "" {
		return ""
	}
	slug := post.Filename
	if slug == "" {
		slug = fmt.Sprintf("%d", post.ID)
	}
	return fmt.Sprintf("%s/%s/post/%s", e.origin, handle, slug)
}

func (e *Extractor) renderBlock(ctx context.Context, post *RawPost, block RawBlock) (string, error) {
	switch block.Type {
	case blockMarkdown:
		if block.Markdown == nil {
			return "", fmt.Errorf("extract: markdown block without content")
		}
		return e.renderMarkdown(ctx, block.Markdown.Content)

	case blockAttachment:
		if block.Attachment == nil {
			return "", fmt.Errorf("extract: attachment block without payload")
		}
		return e.renderAttachment(ctx, *block.Attachment)

	case blockAsk:
		if block.Ask == nil {
			return "", fmt.Errorf("extract: ask block without payload")
		}
		return e.renderAsk(ctx, *block.Ask)

	case blockAttachmentRow:
		var row strings.Builder
		row.WriteString(`<div class="attachment-row">` + "\n")
		for _, inner := range block.Attachments {
			if inner.Type != blockAttachment || inner.Attachment == nil {
				e.log.Warn("attachment row holds a non-attachment block", "post", post.ID, "type", inner.Type)
				continue
			}
			fragment, err := e.renderAttachment(ctx, *inner.Attachment)
			if err != nil {
				e.log.Warn("skipping row attachment", "post", post.ID, "error", err)
				continue
			}
			row.WriteString(fragment)
			row.WriteByte('\n')
		}
		row.WriteString("</div>")
		return row.String(), nil

	default:
		e.log.Warn("unknown block type", "post", post.ID, "type", block.Type)
		return "", nil
	}
}

// renderMarkdown renders a markdown block and runs the URL rewrite pass over
// the resulting fragment.
func (e *Extractor) renderMarkdown(ctx context.Context, markdown string) (string, error) {
	var buf strings.Builder
	if err := e.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("extract: render markdown: %w", err)
	}
	return e.rewriteFragment(ctx, buf.String())
}

func (e *Extractor) renderAttachment(ctx context.Context, att RawAttachment) (string, error) {
	if att.AttachmentID == "" {
		return "", fmt.Errorf("extract: attachment without id")
	}
	originURL := e.attachmentURL(att.AttachmentID)

	switch att.Kind {
	case "image", "":
		full, err := e.attachments.Resolve(ctx, originURL)
		if err != nil {
			return "", err
		}
		thumb, err := e.attachments.ResolveThumb(ctx, originURL)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString(`<p><a href="` + escapeAttr(full) + `"><img loading="lazy" src="` + escapeAttr(thumb) + `"`)
		if att.AltText != "" {
			b.WriteString(` alt="` + escapeAttr(att.AltText) + `"`)
		}
		if att.Width > 0 && att.Height > 0 {
			b.WriteString(fmt.Sprintf(` width="%d" height="%d"`, att.Width, att.Height))
		}
		b.WriteString(` data-origin-src="` + escapeAttr(originURL) + `"></a></p>`)
		return b.String(), nil

	case "audio":
		full, err := e.attachments.Resolve(ctx, originURL)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString(`<figure class="audio">`)
		caption := att.Artist
		if att.Title != "" {
			if caption != "" {
				caption += " - "
			}
			caption += att.Title
		}
		if caption != "" {
			b.WriteString(`<figcaption>` + escapeText(caption) + `</figcaption>`)
		}
		b.WriteString(`<audio controls src="` + escapeAttr(full) + `" data-origin-src="` + escapeAttr(originURL) + `"></audio></figure>`)
		return b.String(), nil

	default:
		return "", fmt.Errorf("extract: unknown attachment kind %q", att.Kind)
	}
}

func (e *Extractor) renderAsk(ctx context.Context, ask RawAsk) (string, error) {
	content, err := e.renderMarkdown(ctx, ask.Content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(`<blockquote class="ask"><p class="ask-author">`)
	switch {
	case ask.Asker != nil && ask.Asker.Handle != "":
		href := ask.Asker.URL
		if href == "" {
			href = e.origin + "/" + ask.Asker.Handle
		}
		b.WriteString(`<a href="` + escapeAttr(href) + `">@` + escapeText(ask.Asker.Handle) + `</a> asked:`)
	default:
		b.WriteString("Anonymous asked:")
	}
	b.WriteString(`</p>` + "\n" + content + `</blockquote>`)
	return b.String(), nil
}

// attachmentURL builds the redirect URL an attachment id resolves through.
func (e *Extractor) attachmentURL(id string) string {
	return e.origin + "/rc/attachment-redirect/" + id
}

func escapeAttr(s string) string {
	return strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
