// Package attachments manages the content-addressed attachment store: remote
// media referenced by imported posts is fetched once, cached by its site
// path, and mirrored into the rendered site tree.
package attachments

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/starford/hearth/internal/apperr"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
	"github.com/starford/hearth/internal/fetch"
	"github.com/starford/hearth/internal/storage"
)

// Thumbnails are requested at a fixed width; the origin scales server-side.
const thumbWidth = "675"

// Store resolves remote attachment URLs to site-relative paths, fetching and
// caching content on first sight. Resolution is keyed by the derived site
// path: two posts embedding the same upload share one stored copy, while the
// same filename under different upload ids stays distinct.
type Store struct {
	cache   *cache.Store
	fetcher fetch.Fetcher
	site    storage.Provider
	log     *slog.Logger

	mu   sync.Mutex
	dead map[string]struct{}
}

// New creates an attachment store that mirrors fetched content into site.
func New(c *cache.Store, f fetch.Fetcher, site storage.Provider, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{cache: c, fetcher: f, site: site, log: log, dead: make(map[string]struct{})}
}

// SitePath derives the stable site-relative path for a remote attachment
// URL. Upload-style URLs (".../attachment/<id>/<filename>") keep their id and
// filename; anything else is keyed by a hash of the whole URL.
func SitePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("attachments: unparseable url %q: %w", rawURL, apperr.ErrMalformed)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segs {
		if (seg != "attachment" && seg != "attachment-redirect") || i+1 >= len(segs) {
			continue
		}
		rest := segs[i+1:]
		if len(rest) >= 2 {
			return path.Join("attachments", rest[0], sanitize(rest[len(rest)-1])), nil
		}
		return path.Join("attachments", rest[0]), nil
	}
	name := "file"
	if len(segs) > 0 && segs[len(segs)-1] != "" {
		name = sanitize(segs[len(segs)-1])
	}
	return path.Join("attachments", checksum.Sum([]byte(rawURL))[:16], name), nil
}

func sanitize(name string) string {
	name = path.Base(name)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '?', '#':
			return '-'
		}
		return r
	}, name)
}

// Resolve returns the site-relative path for a remote attachment, fetching
// and caching it when not already stored. A permanently missing resource is
// a dead link: the original URL comes back unchanged and the import
// continues.
func (s *Store) Resolve(ctx context.Context, rawURL string) (string, error) {
	sitePath, err := SitePath(rawURL)
	if err != nil {
		return "", err
	}
	return s.resolve(ctx, rawURL, sitePath)
}

// ResolveThumb resolves a width-limited thumbnail of the attachment as a
// distinct stored entry, so the full-size copy and the thumbnail never
// overwrite each other.
func (s *Store) ResolveThumb(ctx context.Context, rawURL string) (string, error) {
	sitePath, err := SitePath(rawURL)
	if err != nil {
		return "", err
	}
	sitePath = path.Join("attachments", "thumbs", strings.TrimPrefix(sitePath, "attachments/"))

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("attachments: unparseable url %q: %w", rawURL, apperr.ErrMalformed)
	}
	q := u.Query()
	q.Set("width", thumbWidth)
	u.RawQuery = q.Encode()

	return s.resolve(ctx, u.String(), sitePath)
}

func (s *Store) resolve(ctx context.Context, fetchURL, sitePath string) (string, error) {
	s.mu.Lock()
	_, isDead := s.dead[sitePath]
	s.mu.Unlock()
	if isDead {
		return fetchURL, nil
	}

	row, err := s.cache.Attachment(sitePath)
	if err != nil {
		return "", err
	}
	if row != nil {
		if err := s.mirror(sitePath, row.Content); err != nil {
			return "", err
		}
		return sitePath, nil
	}

	content, err := s.fetchWithRetry(ctx, fetchURL)
	switch {
	case apperr.IsNotFound(err):
		s.log.Warn("attachment is gone upstream, leaving dead link", "url", fetchURL)
		s.mu.Lock()
		s.dead[sitePath] = struct{}{}
		s.mu.Unlock()
		return fetchURL, nil
	case err != nil:
		return "", err
	}

	if err := s.cache.PutAttachment(sitePath, checksum.Sum(content), content); err != nil {
		return "", err
	}
	if err := s.mirror(sitePath, content); err != nil {
		return "", err
	}
	s.log.Debug("stored attachment", "url", fetchURL, "path", sitePath, "bytes", len(content))
	return sitePath, nil
}

// Put stores attachment bytes sourced locally (an export directory) under an
// explicit site path, replacing the cached row only when the content hash
// changed.
func (s *Store) Put(sitePath string, content []byte) error {
	hash := checksum.Sum(content)
	stored, err := s.cache.AttachmentHash(sitePath)
	if err != nil {
		return err
	}
	if stored != hash {
		if err := s.cache.PutAttachment(sitePath, hash, content); err != nil {
			return err
		}
	}
	return s.mirror(sitePath, content)
}

// mirror ensures the site tree carries a copy of the stored attachment.
// Already-mirrored paths are left alone.
func (s *Store) mirror(sitePath string, content []byte) error {
	if _, err := s.site.Read(sitePath); err == nil {
		return nil
	}
	return s.site.Write(sitePath, content)
}

func (s *Store) fetchWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var content []byte
	backoff := retry.WithMaxRetries(3, retry.NewExponential(4*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			if apperr.IsTransient(err) {
				s.log.Warn("transient attachment failure, will retry", "url", rawURL, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		content = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}
