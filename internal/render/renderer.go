package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/starford/hearth/internal/document"
)

// Renderer produces the HTML building blocks of the site. Implementations
// must be pure: identical inputs give identical bytes, which is what lets
// the build store memoize renderings across runs.
type Renderer interface {
	// ThreadFragment renders one thread's posts as an HTML fragment. The
	// simple form collapses chrome for embedding in feeds and shares.
	ThreadFragment(t *document.Thread, simple bool) ([]byte, error)

	// Page wraps rendered content in the site page shell.
	Page(title, feedHref string, content []byte) ([]byte, error)
}

// HTML is the default renderer: goldmark for markdown bodies, html/template
// for the page shell and thread markup.
type HTML struct {
	md        goldmark.Markdown
	siteTitle string
}

var _ Renderer = (*HTML)(nil)

// NewHTML creates the default renderer.
func NewHTML(siteTitle string) *HTML {
	return &HTML{
		md:        goldmark.New(goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe())),
		siteTitle: siteTitle,
	}
}

var threadTemplate = template.Must(template.New("thread").Parse(`<article class="thread">
{{- range .Posts}}
<section class="post{{if .Meta.Transparent}} transparent{{end}}">
{{- if not $.Simple}}
<header>
{{- if .Meta.Author}}<span class="author"><a href="{{.Meta.Author.URL}}">{{.Meta.Author.DisplayName}}{{if .Meta.Author.Handle}} (@{{.Meta.Author.Handle}}){{end}}</a></span>{{end}}
{{- if .Meta.Title}}<h2 class="title">{{.Meta.Title}}</h2>{{end}}
{{- if .Meta.Published}}<time datetime="{{.Meta.Published}}">{{.Meta.Published}}</time>{{end}}
{{- if .Meta.Origin}}<a class="origin" href="{{.Meta.Origin}}">archived</a>{{end}}
</header>
{{- end}}
{{- if not .Meta.Transparent}}
<div class="body">{{.Body}}</div>
{{- end}}
</section>
{{- end}}
{{- if and .Simple .Tags}}
<footer class="tags">{{range .Tags}}<span class="tag">#{{.}}</span> {{end}}</footer>
{{- end}}
</article>
`))

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="style.css">
{{- if .FeedHref}}
<link rel="alternate" type="application/atom+xml" href="{{.FeedHref}}">
{{- end}}
</head>
<body>
<main>
{{.Content}}
</main>
</body>
</html>
`))

type postView struct {
	Meta document.Meta
	Body template.HTML
}

func (r *HTML) ThreadFragment(t *document.Thread, simple bool) ([]byte, error) {
	posts := make([]postView, 0, len(t.Posts))
	for _, p := range t.Posts {
		body, err := r.renderBody(p)
		if err != nil {
			return nil, err
		}
		posts = append(posts, postView{Meta: p.Meta, Body: body})
	}

	var buf bytes.Buffer
	err := threadTemplate.Execute(&buf, struct {
		Posts  []postView
		Simple bool
		Tags   []string
	}{posts, simple, t.Meta().Tags})
	if err != nil {
		return nil, fmt.Errorf("render: thread %s: %w", t.Path, err)
	}
	return buf.Bytes(), nil
}

func (r *HTML) Page(title, feedHref string, content []byte) ([]byte, error) {
	if title == "" {
		title = r.siteTitle
	} else {
		title = title + " | " + r.siteTitle
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title    string
		FeedHref string
		Content  template.HTML
	}{title, feedHref, template.HTML(content)})
	if err != nil {
		return nil, fmt.Errorf("render: page %q: %w", title, err)
	}
	return buf.Bytes(), nil
}

// renderBody converts a markdown body to HTML; pre-sanitized HTML bodies
// pass through untouched.
func (r *HTML) renderBody(d *document.Document) (template.HTML, error) {
	if !d.IsMarkdown() {
		return template.HTML(d.Body), nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(d.Body), &buf); err != nil {
		return "", fmt.Errorf("render: markdown %s: %w", d.Path, err)
	}
	return template.HTML(buf.String()), nil
}
