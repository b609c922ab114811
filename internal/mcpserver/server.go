// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the archive's tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/composer"
	"github.com/starford/hearth/internal/storage"
)

// Server wraps the MCP server with archive tools.
type Server struct {
	mcp    *server.MCPServer
	corpus storage.Provider
	store  *cache.Store
	svc    *composer.Service
}

// New creates a new MCP server with all archive tools registered.
func New(corpus storage.Provider, store *cache.Store, svc *composer.Service) *Server {
	s := &Server{corpus: corpus, store: store, svc: svc}

	s.mcp = server.NewMCPServer(
		"Hearth",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Full-text search through archived post titles, tags and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the raw content of a document (front matter plus body)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Corpus-relative path (e.g. posts/123.html)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List documents in the corpus, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("create_draft",
		mcp.WithDescription("Create a new draft at the specified path. "+
			"Content MUST follow the canonical document format (YAML front matter, "+
			"Markdown body). Read the contract first via the get_post_contract tool "+
			"or the hearth://post-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Corpus-relative path for the draft (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document content following the post format contract")),
	), s.createDraft)

	s.mcp.AddTool(mcp.NewTool("preview_post",
		mcp.WithDescription("Render draft content to an HTML fragment without persisting it. "+
			"Returns the rendered HTML and the tags after inference rules."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document content to render")),
	), s.previewPost)

	s.mcp.AddTool(mcp.NewTool("get_post_contract",
		mcp.WithDescription("Returns the canonical document format contract. "+
			"Call this before creating drafts to ensure correct structure."),
	), s.getPostContract)

	s.mcp.AddTool(mcp.NewTool("get_references",
		mcp.WithDescription("List the documents a post replies to or shares."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the post to inspect")),
	), s.getReferences)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("hearth://post-format", "Post Format Contract",
			mcp.WithResourceDescription("Canonical document format that all posts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.store.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.corpus.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := ""
	if v, err := req.RequireString("tag"); err == nil {
		tag = v
	}

	items, _, err := s.svc.ListPosts(ctx, 0, 0, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) createDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.svc.CreateDraft(ctx, path, []byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) previewPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	html, finalTags, err := s.svc.Preview(ctx, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"html": html, "tags": finalTags}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPostContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "hearth://post-format",
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}

func (s *Server) getReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	post, err := s.svc.GetPost(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if len(post.References) == 0 {
		return mcp.NewToolResultText("no references"), nil
	}
	return mcp.NewToolResultText(strings.Join(post.References, "\n")), nil
}
