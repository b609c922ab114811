package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/hearth/internal/attachments"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/document"
	"github.com/starford/hearth/internal/extract"
	"github.com/starford/hearth/internal/storage"
	"github.com/starford/hearth/internal/tags"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return []byte("bytes for " + url), nil
}

func testImporter(t *testing.T) (*Importer, *storage.FS, *cache.Store) {
	t.Helper()
	f, err := os.CreateTemp("", "hearth-import-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	store, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	corpus, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	site, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	att := attachments.New(store, stubFetcher{}, site, nil)
	rules := tags.Rules{
		Renames:      map[string]string{"Birds": "birds"},
		Implications: map[string][]string{"bird photography": {"birds", "photography"}},
	}
	im := New(corpus, store, extract.New(att), att, rules, nil)
	return im, corpus, store
}

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDirWritesDocuments(t *testing.T) {
	im, corpus, store := testImporter(t)
	dir := t.TempDir()
	writeExport(t, dir, "1.json", `{
		"id": 1,
		"headline": "first",
		"publishedAt": "2023-01-01T00:00:00Z",
		"tags": ["Birds", "bird photography"],
		"author": {"handle": "alice", "url": "https://cohost.org/alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "hello"}}]
	}`)

	report, err := im.ImportDir(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Imported != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	data, err := corpus.Read("posts/1.html")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := document.Parse("posts/1.html", data)
	if err != nil {
		t.Fatal(err)
	}
	// Rename then implication, implied tags spliced before the specific one.
	want := []string{"birds", "birds", "photography", "bird photography"}
	if len(doc.Meta.Tags) != len(want) {
		t.Fatalf("tags = %v", doc.Meta.Tags)
	}
	for i, tag := range want {
		if doc.Meta.Tags[i] != tag {
			t.Errorf("tags[%d] = %s, want %s", i, doc.Meta.Tags[i], tag)
		}
	}
	if !strings.Contains(doc.Body, "<p>hello</p>") {
		t.Errorf("body = %q", doc.Body)
	}

	if h, err := store.FileHash("posts/1.html"); err != nil || h == "" {
		t.Errorf("file hash not recorded: %q %v", h, err)
	}
	rows, _, err := store.ListPosts(10, 0, "")
	if err != nil || len(rows) != 1 || rows[0].Title != "first" {
		t.Errorf("index rows = %v err=%v", rows, err)
	}
}

type failingFetcher struct{ calls int }

func (f *failingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	return nil, context.DeadlineExceeded
}

func TestImportDirUsesBundledAttachments(t *testing.T) {
	f, err := os.CreateTemp("", "hearth-import-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	store, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	corpus, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	site, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &failingFetcher{}
	att := attachments.New(store, fetcher, site, nil)
	im := New(corpus, store, extract.New(att), att, tags.Rules{}, nil)

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "attachments", "id-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "attachments", "id-1", "cat.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeExport(t, dir, "6.json", `{
		"id": 6,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "<img src=\"https://staging.cohostcdn.org/attachment/id-1/cat.png\">"}}]
	}`)

	report, err := im.ImportDir(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Imported != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times for bundled attachment", fetcher.calls)
	}
	data, err := corpus.Read("posts/6.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `src="attachments/id-1/cat.png"`) {
		t.Errorf("body = %s", data)
	}
	if _, err := site.Read("attachments/id-1/cat.png"); err != nil {
		t.Error("bundled attachment not mirrored into site tree")
	}
}

func TestImportDirRecordsReferences(t *testing.T) {
	im, corpus, store := testImporter(t)
	dir := t.TempDir()
	writeExport(t, dir, "2.json", `{
		"id": 2,
		"author": {"handle": "alice"},
		"ancestors": [{"id": 1, "author": {"handle": "bob"}, "blocks": [{"type": "markdown", "markdown": {"content": "root"}}]}],
		"blocks": []
	}`)

	if _, err := im.ImportDir(context.Background(), dir, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := corpus.Read("posts/2/1.html"); err != nil {
		t.Error("ancestor document missing")
	}
	_, needs, ok, err := store.Dependencies("posts/2.html")
	if err != nil || !ok {
		t.Fatal(err)
	}
	if len(needs) != 1 || needs[0].Path != "posts/2/1.html" {
		t.Errorf("needs = %v", needs)
	}
}

func TestImportDirAggregatesFailures(t *testing.T) {
	im, corpus, _ := testImporter(t)
	dir := t.TempDir()
	writeExport(t, dir, "bad.json", `{broken`)
	writeExport(t, dir, "good.json", `{
		"id": 3,
		"author": {"handle": "alice"},
		"blocks": [{"type": "markdown", "markdown": {"content": "fine"}}]
	}`)

	report, err := im.ImportDir(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Imported != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Err() == nil {
		t.Error("aggregated error expected")
	}
	if _, err := corpus.Read("posts/3.html"); err != nil {
		t.Error("good post should still import")
	}
}

func TestImportDirSubset(t *testing.T) {
	im, corpus, _ := testImporter(t)
	dir := t.TempDir()
	writeExport(t, dir, "4.json", `{"id": 4, "author": {"handle": "a"}, "blocks": []}`)
	writeExport(t, dir, "5.json", `{"id": 5, "author": {"handle": "a"}, "blocks": []}`)

	report, err := im.ImportDir(context.Background(), dir, []string{"4.json"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Imported != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := corpus.Read("posts/4.html"); err != nil {
		t.Error("requested post missing")
	}
	if _, err := corpus.Read("posts/5.html"); err == nil {
		t.Error("unrequested post should not be imported")
	}
}
