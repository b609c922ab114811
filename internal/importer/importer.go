// Package importer orchestrates a batch import: exported platform posts are
// extracted into canonical documents, their tags run through inference, and
// the results written into the corpus with their cache rows.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/hearth/internal/attachments"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
	"github.com/starford/hearth/internal/document"
	"github.com/starford/hearth/internal/extract"
	"github.com/starford/hearth/internal/storage"
	"github.com/starford/hearth/internal/tags"
)

// Importer converts an export directory into canonical documents.
type Importer struct {
	corpus      storage.Provider
	store       *cache.Store
	extractor   *extract.Extractor
	attachments *attachments.Store
	rules       tags.Rules
	log         *slog.Logger
}

// New wires an importer. att may be nil when the export carries no bundled
// media.
func New(corpus storage.Provider, store *cache.Store, extractor *extract.Extractor, att *attachments.Store, rules tags.Rules, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{corpus: corpus, store: store, extractor: extractor, attachments: att, rules: rules, log: log}
}

// Report summarizes one import run. Per-post failures are collected here;
// only store-level errors abort the run.
type Report struct {
	Imported int
	Failed   int
	Errors   []error
}

// Err folds the aggregated per-post errors into one.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

// ImportDir imports every "*.json" export in dir, in filename order. A
// non-empty subset restricts the run to those filenames; everything else is
// left untouched.
func (im *Importer) ImportDir(ctx context.Context, dir string, subset []string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("importer: read export dir: %w", err)
	}

	if err := im.loadBundledAttachments(dir); err != nil {
		im.log.Warn("bundled attachment intake failed", "error", err)
	}

	only := map[string]bool{}
	for _, name := range subset {
		only[name] = true
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if len(only) > 0 && !only[entry.Name()] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	report := &Report{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := im.importOne(ctx, filepath.Join(dir, name)); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("importer: %s: %w", name, err))
			im.log.Warn("import failed", "post", name, "error", err)
			continue
		}
		report.Imported++
	}
	im.log.Info("import finished", "imported", report.Imported, "failed", report.Failed)
	return report, nil
}

// loadBundledAttachments seeds the attachment store with media shipped in
// the export itself (dir/attachments/<id>/<file>), so extraction resolves
// those references without fetching.
func (im *Importer) loadBundledAttachments(dir string) error {
	if im.attachments == nil {
		return nil
	}
	base := filepath.Join(dir, "attachments")
	if _, err := os.Stat(base); err != nil {
		return nil
	}
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		return im.attachments.Put(filepath.ToSlash(rel), data)
	})
}

func (im *Importer) importOne(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	docs, err := im.extractor.ExtractPost(ctx, data)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := im.writeDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

// writeDocument runs tag inference, writes the document into the corpus and
// records its file hash, reference edges and search index row.
func (im *Importer) writeDocument(doc *document.Document) error {
	doc.Meta.Tags = im.rules.Infer(doc.Meta.Tags)

	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := im.corpus.Write(doc.Path, data); err != nil {
		return err
	}

	hash := checksum.Sum(data)
	if err := im.store.PutFileHash(doc.Path, hash); err != nil {
		return err
	}
	if len(doc.Meta.References) > 0 {
		if err := im.store.ReplaceDependencies(doc.Path, hash, doc.Meta.References); err != nil {
			return err
		}
	}
	return im.store.IndexPost(doc.Path, doc.Meta.Title, doc.Meta.Tags, doc.Body)
}
