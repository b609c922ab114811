package composer

import (
	"context"
	"fmt"

	"github.com/starford/hearth/internal/apperr"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
	"github.com/starford/hearth/internal/document"
	"github.com/starford/hearth/internal/render"
	"github.com/starford/hearth/internal/storage"
	"github.com/starford/hearth/internal/tags"
)

// Service coordinates corpus and cache operations for the composer API.
type Service struct {
	corpus   storage.Provider
	store    *cache.Store
	renderer render.Renderer
	rules    tags.Rules
}

// NewService creates a composer service.
func NewService(corpus storage.Provider, store *cache.Store, renderer render.Renderer, rules tags.Rules) *Service {
	return &Service{corpus: corpus, store: store, renderer: renderer, rules: rules}
}

// PostDetail is the response payload for a single post.
type PostDetail struct {
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Checksum    string   `json:"checksum"`
	Tags        []string `json:"tags"`
	References  []string `json:"references"`
	Published   string   `json:"published,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Transparent bool     `json:"transparent,omitempty"`
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	Path  string   `json:"path"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// GetPost reads a post from the corpus and parses its front matter.
func (s *Service) GetPost(_ context.Context, path string) (*PostDetail, error) {
	data, err := s.corpus.Read(path)
	if err != nil {
		return nil, fmt.Errorf("composer: %s: %w", path, apperr.ErrNotFound)
	}
	doc, err := document.Parse(path, data)
	if err != nil {
		return nil, err
	}

	detail := &PostDetail{
		Path:        path,
		Title:       doc.Meta.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        doc.Meta.Tags,
		References:  doc.Meta.References,
		Published:   doc.Meta.Published,
		Origin:      doc.Meta.Origin,
		Transparent: doc.Meta.Transparent,
	}
	if detail.Tags == nil {
		detail.Tags = []string{}
	}
	if detail.References == nil {
		detail.References = []string{}
	}
	return detail, nil
}

// CreateDraft writes a new post. The path must not already exist.
func (s *Service) CreateDraft(ctx context.Context, path string, content []byte) (*PostDetail, error) {
	if _, err := s.corpus.Read(path); err == nil {
		return nil, fmt.Errorf("composer: %s: %w", path, apperr.ErrAlreadyExists)
	}
	if err := s.writePost(path, content); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, path)
}

// UpdatePost replaces a post's content with optimistic concurrency: when
// ifMatch is set it must equal the stored content's checksum.
func (s *Service) UpdatePost(ctx context.Context, path string, content []byte, ifMatch string) (*PostDetail, error) {
	existing, err := s.corpus.Read(path)
	if err != nil {
		return nil, fmt.Errorf("composer: %s: %w", path, apperr.ErrNotFound)
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, fmt.Errorf("composer: %s: %w", path, apperr.ErrConflict)
	}
	if err := s.writePost(path, content); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, path)
}

// MovePost renames a post within the corpus, typically a draft being
// published (drafts/x.md -> posts/x.md). The destination must be free.
func (s *Service) MovePost(ctx context.Context, oldPath, newPath string) (*PostDetail, error) {
	data, err := s.corpus.Read(oldPath)
	if err != nil {
		return nil, fmt.Errorf("composer: %s: %w", oldPath, apperr.ErrNotFound)
	}
	if _, err := s.corpus.Read(newPath); err == nil {
		return nil, fmt.Errorf("composer: %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	if err := s.corpus.Move(oldPath, newPath); err != nil {
		return nil, err
	}
	if err := s.store.DeleteFile(oldPath); err != nil {
		return nil, err
	}
	if err := s.writePost(newPath, data); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, newPath)
}

// DeletePost removes a post from the corpus and clears its cache rows.
func (s *Service) DeletePost(_ context.Context, path string) error {
	if err := s.corpus.Delete(path); err != nil {
		return fmt.Errorf("composer: %s: %w", path, apperr.ErrNotFound)
	}
	return s.store.DeleteFile(path)
}

// ListPosts returns paginated posts with an optional tag filter.
func (s *Service) ListPosts(_ context.Context, limit, offset int, tag string) ([]PostListItem, int, error) {
	rows, total, err := s.store.ListPosts(limit, offset, tag)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = PostListItem{Path: r.Path, Title: r.Title, Tags: r.Tags}
		if items[i].Tags == nil {
			items[i].Tags = []string{}
		}
	}
	return items, total, nil
}

// Search delegates to the cache store's post index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]cache.SearchResult, error) {
	return s.store.Search(query, limit)
}

// Preview renders draft content through the live render pipeline without
// persisting anything. Tag inference runs so the preview shows the final
// tags.
func (s *Service) Preview(_ context.Context, content []byte) (string, []string, error) {
	doc, err := document.Parse("preview.md", content)
	if err != nil {
		return "", nil, err
	}
	doc.Meta.Tags = s.rules.Infer(doc.Meta.Tags)

	thread := &document.Thread{Path: doc.Path, Posts: []*document.Document{doc}}
	fragment, err := s.renderer.ThreadFragment(thread, false)
	if err != nil {
		return "", nil, err
	}
	finalTags := doc.Meta.Tags
	if finalTags == nil {
		finalTags = []string{}
	}
	return string(fragment), finalTags, nil
}

// writePost persists the post and refreshes its index rows.
func (s *Service) writePost(path string, content []byte) error {
	doc, err := document.Parse(path, content)
	if err != nil {
		return err
	}
	if err := s.corpus.Write(path, content); err != nil {
		return err
	}
	if err := s.store.PutFileHash(path, checksum.Sum(content)); err != nil {
		return err
	}
	if len(doc.Meta.References) > 0 {
		if err := s.store.ReplaceDependencies(path, checksum.Sum(content), doc.Meta.References); err != nil {
			return err
		}
	}
	return s.store.IndexPost(path, doc.Meta.Title, doc.Meta.Tags, doc.Body)
}
