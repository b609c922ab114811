package cache

import (
	"errors"
	"os"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "hearth-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileHashRoundTrip(t *testing.T) {
	s := testStore(t)
	if h, err := s.FileHash("p.md"); err != nil || h != "" {
		t.Fatalf("unrecorded path: hash=%q err=%v", h, err)
	}
	if err := s.PutFileHash("p.md", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutFileHash("p.md", "h2"); err != nil {
		t.Fatal(err)
	}
	h, err := s.FileHash("p.md")
	if err != nil || h != "h2" {
		t.Errorf("hash = %q err=%v, want h2", h, err)
	}

	all, err := s.AllFileHashes()
	if err != nil {
		t.Fatal(err)
	}
	if all["p.md"] != "h2" {
		t.Errorf("all = %v", all)
	}
}

func TestIsStale(t *testing.T) {
	s := testStore(t)
	live := map[string]string{"a.html": "ha", "b.html": "hb"}
	hashOf := func(path string) (string, error) {
		h, ok := live[path]
		if !ok {
			return "", errors.New("missing")
		}
		return h, nil
	}

	// No edges recorded yet.
	stale, err := s.IsStale("a.html", hashOf)
	if err != nil || !stale {
		t.Fatalf("no edges: stale=%v err=%v, want true", stale, err)
	}

	if err := s.PutFileHash("b.html", "hb"); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceDependencies("a.html", "ha", []string{"b.html"}); err != nil {
		t.Fatal(err)
	}

	// Everything matches.
	stale, err = s.IsStale("a.html", hashOf)
	if err != nil || stale {
		t.Fatalf("all fresh: stale=%v err=%v, want false", stale, err)
	}

	// Dependency changes.
	live["b.html"] = "hb2"
	if stale, _ := s.IsStale("a.html", hashOf); !stale {
		t.Error("changed dependency should mark artifact stale")
	}

	// A refreshed file-cache row must not mask the change: the check runs
	// against the hash snapshotted on the edge, not the files table.
	if err := s.PutFileHash("b.html", "hb2"); err != nil {
		t.Fatal(err)
	}
	if stale, _ := s.IsStale("a.html", hashOf); !stale {
		t.Error("changed dependency hidden by refreshed file cache")
	}
	live["b.html"] = "hb"
	if err := s.PutFileHash("b.html", "hb"); err != nil {
		t.Fatal(err)
	}

	// Artifact itself changes.
	live["a.html"] = "ha2"
	if stale, _ := s.IsStale("a.html", hashOf); !stale {
		t.Error("changed artifact should be stale")
	}
	live["a.html"] = "ha"

	// Dependency disappears.
	delete(live, "b.html")
	if stale, _ := s.IsStale("a.html", hashOf); !stale {
		t.Error("missing dependency should be stale")
	}
}

func TestReplaceDependenciesIsWholesale(t *testing.T) {
	s := testStore(t)
	if err := s.ReplaceDependencies("a", "h1", []string{"x", "y"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceDependencies("a", "h2", []string{"z"}); err != nil {
		t.Fatal(err)
	}
	hash, needs, ok, err := s.Dependencies("a")
	if err != nil || !ok {
		t.Fatal(err)
	}
	if hash != "h2" || len(needs) != 1 || needs[0].Path != "z" {
		t.Errorf("hash=%q needs=%v", hash, needs)
	}
}

func TestIsStaleZeroNeedArtifact(t *testing.T) {
	s := testStore(t)
	live := map[string]string{"untagged.html": "h1"}
	hashOf := func(path string) (string, error) {
		h, ok := live[path]
		if !ok {
			return "", errors.New("missing")
		}
		return h, nil
	}

	// An empty listing has no needs but still gets a freshness record.
	if err := s.ReplaceDependencies("untagged.html", "h1", nil); err != nil {
		t.Fatal(err)
	}
	stale, err := s.IsStale("untagged.html", hashOf)
	if err != nil || stale {
		t.Fatalf("empty listing should stay fresh: stale=%v err=%v", stale, err)
	}

	live["untagged.html"] = "h2"
	if stale, _ := s.IsStale("untagged.html", hashOf); !stale {
		t.Error("rewritten artifact should be stale")
	}
}

func TestThreadRenderingsInvalidatedByHash(t *testing.T) {
	s := testStore(t)
	if err := s.PutThreadRenderings("t.html", "h1", "<b>n</b>", "<i>s</i>"); err != nil {
		t.Fatal(err)
	}

	r, err := s.ThreadRenderings("t.html", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Normal != "<b>n</b>" || r.Simple != "<i>s</i>" {
		t.Fatalf("renderings = %+v", r)
	}

	// A different live hash invalidates both renderings together.
	r, err = s.ThreadRenderings("t.html", "h2")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Errorf("stale hash should return nil, got %+v", r)
	}
}

func TestAttachmentRowReplacedTogether(t *testing.T) {
	s := testStore(t)
	if err := s.PutAttachment("attachments/a", "h1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAttachment("attachments/a", "h2", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	row, err := s.Attachment("attachments/a")
	if err != nil {
		t.Fatal(err)
	}
	if row.Hash != "h2" || string(row.Content) != "v2" {
		t.Errorf("row = %+v", row)
	}

	if row, err := s.Attachment("attachments/none"); err != nil || row != nil {
		t.Errorf("absent row: %+v err=%v", row, err)
	}
}

func TestDerivationOutputRoundTrip(t *testing.T) {
	s := testStore(t)
	if err := s.PutDerivation("drv1", "RenderThread{a.html}", "out1", []byte("rendered")); err != nil {
		t.Fatal(err)
	}
	content, ok, err := s.Output("out1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(content) != "rendered" {
		t.Errorf("output = %q ok=%v", content, ok)
	}
	details, err := s.DerivationDetails("drv1")
	if err != nil || details != "RenderThread{a.html}" {
		t.Errorf("details = %q err=%v", details, err)
	}
	if content, ok, err := s.Output("missing"); err != nil || ok || content != nil {
		t.Errorf("absent output: %q ok=%v err=%v", content, ok, err)
	}

	// An empty output is a hit, not a miss.
	if err := s.PutDerivation("drv2", "RenderThread{b.html}", "out2", []byte{}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Output("out2"); err != nil || !ok {
		t.Errorf("empty output should be present: ok=%v err=%v", ok, err)
	}
}

func TestDeleteFileClearsAllRows(t *testing.T) {
	s := testStore(t)
	if err := s.PutFileHash("p.md", "h"); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceDependencies("p.md", "h", []string{"q.md"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutThreadRenderings("p.md", "h", "n", "s"); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexPost("p.md", "title", []string{"t"}, "body"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile("p.md"); err != nil {
		t.Fatal(err)
	}
	if h, _ := s.FileHash("p.md"); h != "" {
		t.Error("file hash not cleared")
	}
	if _, _, ok, _ := s.Dependencies("p.md"); ok {
		t.Error("deps not cleared")
	}
	if r, _ := s.ThreadRenderings("p.md", "h"); r != nil {
		t.Error("thread renderings not cleared")
	}
}

func TestListPosts(t *testing.T) {
	s := testStore(t)
	if err := s.IndexPost("a.md", "Alpha", []string{"birds"}, "body a"); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexPost("b.md", "Beta", []string{"fish"}, "body b"); err != nil {
		t.Fatal(err)
	}

	rows, total, err := s.ListPosts(10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(rows) != 2 || rows[0].Path != "a.md" {
		t.Errorf("rows=%v total=%d", rows, total)
	}

	rows, total, err = s.ListPosts(10, 0, "birds")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Title != "Alpha" {
		t.Errorf("filtered rows=%v total=%d", rows, total)
	}
}
