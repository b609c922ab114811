package extract

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/starford/hearth/internal/attachments"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/storage"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return []byte("bytes for " + url), nil
}

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	f, err := os.CreateTemp("", "hearth-extract-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	c, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	site, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	att := attachments.New(c, stubFetcher{}, site, nil)
	return New(att, WithOrigin("https://cohost.org"))
}

func TestExtractMarkdownRewritesRemoteImages(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 10,
		"headline": "hi",
		"publishedAt": "2023-01-02T03:04:05Z",
		"author": {"handle": "alice", "displayName": "Alice", "url": "https://cohost.org/alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "![cat](https://cohost.org/rc/attachment-redirect/id-1)"}}]
	}`

	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d", len(docs))
	}
	doc := docs[0]
	if doc.Path != "posts/10.html" {
		t.Errorf("path = %s", doc.Path)
	}
	if doc.Meta.Title != "hi" || doc.Meta.Author == nil || doc.Meta.Author.Handle != "alice" {
		t.Errorf("meta = %+v", doc.Meta)
	}
	if doc.Meta.Origin != "https://cohost.org/alice/post/10" {
		t.Errorf("origin = %s", doc.Meta.Origin)
	}
	for _, want := range []string{
		`src="attachments/id-1"`,
		`data-origin-src="https://cohost.org/rc/attachment-redirect/id-1"`,
		`loading="lazy"`,
	} {
		if !strings.Contains(doc.Body, want) {
			t.Errorf("body missing %s:\n%s", want, doc.Body)
		}
	}
}

func TestExtractLeavesForeignURLsAlone(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 11,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "[x](https://example.com/a.png)"}}]
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(docs[0].Body, `href="https://example.com/a.png"`) {
		t.Errorf("foreign url was rewritten:\n%s", docs[0].Body)
	}
	if strings.Contains(docs[0].Body, "data-origin-href") {
		t.Errorf("foreign url should not grow a data-origin attribute:\n%s", docs[0].Body)
	}
}

func TestExtractRewritesInlineStyleURLs(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 12,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "<div style=\"background:url(https://staging.cohostcdn.org/attachment/id-9/bg.png)\">x</div>"}}]
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(docs[0].Body, `url(&#39;attachments/id-9/bg.png&#39;)`) &&
		!strings.Contains(docs[0].Body, `url('attachments/id-9/bg.png')`) {
		t.Errorf("inline style not rewritten:\n%s", docs[0].Body)
	}
}

func TestExtractMentionsAndCustomEmoji(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 13,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "<Mention handle=\"bob\">@bob</Mention> <CustomEmoji name=\"party\" url=\"https://staging.cohostcdn.org/attachment/id-3/party.png\"></CustomEmoji>"}}]
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	body := docs[0].Body
	if !strings.Contains(body, `<a href="https://cohost.org/bob">@bob</a>`) {
		t.Errorf("mention not rewritten:\n%s", body)
	}
	for _, want := range []string{`alt=":party:"`, `title=":party:"`, `src="attachments/id-3/party.png"`} {
		if !strings.Contains(body, want) {
			t.Errorf("emoji missing %s:\n%s", want, body)
		}
	}
}

func TestExtractEmoteShortcodes(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 14,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "hello :eggbug: world"}}]
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	body := docs[0].Body
	if !strings.Contains(body, `alt=":eggbug:"`) || !strings.Contains(body, `class="emote"`) {
		t.Errorf("emote not rewritten:\n%s", body)
	}
	if !strings.Contains(body, "hello ") || !strings.Contains(body, " world") {
		t.Errorf("surrounding text lost:\n%s", body)
	}
}

func TestExtractAttachmentAndAskBlocks(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 15,
		"author": {"handle": "alice"},
		"blocks": [
			{"type": "attachment", "attachment": {"kind": "image", "attachmentId": "id-7", "altText": "a cat", "width": 100, "height": 50}},
			{"type": "ask", "ask": {"content": "why?"}},
			{"type": "glitter"}
		]
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	body := docs[0].Body
	for _, want := range []string{
		`href="attachments/id-7"`,
		`src="attachments/thumbs/id-7"`,
		`alt="a cat"`,
		`width="100" height="50"`,
		"Anonymous asked:",
		"<p>why?</p>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s:\n%s", want, body)
		}
	}
}

func TestExtractAncestorsBecomeReferences(t *testing.T) {
	e := testExtractor(t)
	post := `{
		"id": 20,
		"transparentShare": true,
		"author": {"handle": "alice"},
		"ancestors": [
			{"id": 18, "headline": "root", "author": {"handle": "carol"},
			 "blocks": [{"type": "markdown", "markdown": {"content": "first"}}]},
			{"id": 19, "headline": "reply", "author": {"handle": "dave"},
			 "blocks": [{"type": "markdown", "markdown": {"content": "second"}}]}
		],
		"blocks": []
	}`
	docs, err := e.ExtractPost(context.Background(), []byte(post))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("docs = %d, want 3", len(docs))
	}
	if docs[0].Path != "posts/20/18.html" || docs[1].Path != "posts/20/19.html" {
		t.Errorf("ancestor paths = %s, %s", docs[0].Path, docs[1].Path)
	}
	top := docs[2]
	if top.Path != "posts/20.html" || !top.Meta.Transparent {
		t.Errorf("top = %+v", top)
	}
	if len(top.Meta.References) != 2 || top.Meta.References[0] != "posts/20/18.html" {
		t.Errorf("references = %v", top.Meta.References)
	}
}

func TestExtractMalformedPost(t *testing.T) {
	e := testExtractor(t)
	if _, err := e.ExtractPost(context.Background(), []byte("{not json")); err == nil {
		t.Error("malformed json should fail")
	}
	if _, err := e.ExtractPost(context.Background(), []byte(`{"headline": "x"}`)); err == nil {
		t.Error("post without id should fail")
	}
}
