package mcpserver

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/composer"
	"github.com/starford/hearth/internal/render"
	"github.com/starford/hearth/internal/storage"
	"github.com/starford/hearth/internal/tags"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	corpus, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "hearth-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := cache.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	svc := composer.NewService(corpus, store, render.NewHTML("archive"), tags.Rules{})
	srv := New(corpus, store, svc)
	return srv, corpus
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_posts":
		result, err = srv.searchPosts(ctx, req)
	case "read_post":
		result, err = srv.readPost(ctx, req)
	case "list_posts":
		result, err = srv.listPosts(ctx, req)
	case "create_draft":
		result, err = srv.createDraft(ctx, req)
	case "preview_post":
		result, err = srv.previewPost(ctx, req)
	case "get_references":
		result, err = srv.getReferences(ctx, req)
	case "get_post_contract":
		result, err = srv.getPostContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadDraft(t *testing.T) {
	srv, _ := testServer(t)
	content := "---\ntitle: Test\n---\n\nhello world\n"

	r := callTool(t, srv, "create_draft", map[string]interface{}{
		"path":    "drafts/test.md",
		"content": content,
	})
	if text := resultText(r); text != "created: drafts/test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_post", map[string]interface{}{
		"path": "drafts/test.md",
	})
	if text := resultText(r); text != content {
		t.Errorf("read result = %q", text)
	}

	// Creating over an existing path is an error.
	r = callTool(t, srv, "create_draft", map[string]interface{}{
		"path":    "drafts/test.md",
		"content": content,
	})
	if !r.IsError {
		t.Error("expected error for duplicate create")
	}
}

func TestListPostsByTag(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_draft", map[string]interface{}{
		"path": "drafts/a.md", "content": "---\ntitle: A\ntags: [birds]\n---\n\nx\n",
	})
	callTool(t, srv, "create_draft", map[string]interface{}{
		"path": "drafts/b.md", "content": "---\ntitle: B\ntags: [fish]\n---\n\ny\n",
	})

	r := callTool(t, srv, "list_posts", map[string]interface{}{"tag": "birds"})
	if text := resultText(r); text != "drafts/a.md" {
		t.Errorf("list = %q", text)
	}
}

func TestSearchPosts(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_draft", map[string]interface{}{
		"path": "drafts/a.md", "content": "---\ntitle: A\n---\n\nxylophone music\n",
	})

	r := callTool(t, srv, "search_posts", map[string]interface{}{"query": "xylophone"})
	if text := resultText(r); !strings.Contains(text, "drafts/a.md") {
		t.Errorf("search result = %q", text)
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_post", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
}

func TestPreviewPost(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "preview_post", map[string]interface{}{
		"content": "---\ntitle: P\n---\n\n# hi\n",
	})
	if text := resultText(r); !strings.Contains(text, "&lt;h1&gt;") && !strings.Contains(text, "<h1>hi</h1>") {
		// JSON-encoded fragment; just check the heading made it through.
		if !strings.Contains(text, "hi") {
			t.Errorf("preview result = %q", text)
		}
	}
}

func TestGetReferences(t *testing.T) {
	srv, corpus := testServer(t)
	_ = corpus.Write("posts/1.html", []byte("---\ntitle: root\n---\n\nbody\n"))
	_ = corpus.Write("posts/2.html", []byte("---\ntitle: reply\nreferences: [posts/1.html]\n---\n\nbody\n"))

	r := callTool(t, srv, "get_references", map[string]interface{}{"path": "posts/2.html"})
	if text := resultText(r); text != "posts/1.html" {
		t.Errorf("references = %q", text)
	}

	r = callTool(t, srv, "get_references", map[string]interface{}{"path": "posts/1.html"})
	if text := resultText(r); text != "no references" {
		t.Errorf("references = %q", text)
	}
}
