// Package render walks the corpus of canonical documents and regenerates
// every stale site artifact: post pages, tag pages, collection pages and
// atom feeds. Fresh artifacts are skipped via the dependency cache, and
// thread fragments are memoized through the build store.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/hearth/internal/build"
	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
	"github.com/starford/hearth/internal/document"
	"github.com/starford/hearth/internal/storage"
)

// Scheduler renders the site incrementally.
type Scheduler struct {
	corpus   storage.Provider
	site     storage.Provider
	store    *cache.Store
	builds   *build.Store
	renderer Renderer
	settings Settings
	log      *slog.Logger
	workers  int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers caps the render worker pool.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// NewScheduler wires a scheduler over the corpus tree, the site output tree
// and the shared cache/build stores.
func NewScheduler(corpus, site storage.Provider, store *cache.Store, builds *build.Store, renderer Renderer, settings Settings, opts ...Option) *Scheduler {
	s := &Scheduler{
		corpus:   corpus,
		site:     site,
		store:    store,
		builds:   builds,
		renderer: renderer,
		settings: settings,
		log:      slog.Default(),
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report summarizes one render run. Per-thread errors are aggregated here
// rather than aborting the run.
type Report struct {
	Rendered int
	Skipped  int
	Errors   []error
}

// Err folds the aggregated per-artifact errors into one.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

type renderState struct {
	docs   map[string]*document.Document
	hashes map[string]string

	mu     sync.Mutex
	report Report
}

func (st *renderState) fail(err error) {
	st.mu.Lock()
	st.report.Errors = append(st.report.Errors, err)
	st.mu.Unlock()
}

func (st *renderState) count(rendered bool) {
	st.mu.Lock()
	if rendered {
		st.report.Rendered++
	} else {
		st.report.Skipped++
	}
	st.mu.Unlock()
}

// Run renders every stale artifact. A non-empty subset restricts post page
// rendering to those top-level document paths; classification still sees the
// whole corpus so listings stay correct.
func (s *Scheduler) Run(ctx context.Context, subset []string) (*Report, error) {
	st, threads, err := s.loadCorpus()
	if err != nil {
		return nil, err
	}

	classes := make(map[string]classification, len(threads))
	for _, t := range threads {
		classes[t.Path] = s.settings.classify(t)
	}

	only := map[string]bool{}
	for _, p := range subset {
		only[p] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, t := range threads {
		if len(only) > 0 && !only[t.Path] {
			continue
		}
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.renderPostPage(t, st); err != nil {
				st.fail(fmt.Errorf("render: %s: %w", t.Path, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &st.report, err
	}

	if err := s.renderListings(threads, classes, st); err != nil {
		return &st.report, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	report := st.report
	return &report, nil
}

// loadCorpus reads and parses every document under posts/, refreshes the
// file cache hashes, and assembles threads in deterministic path order.
func (s *Scheduler) loadCorpus() (*renderState, []*document.Thread, error) {
	files, err := s.corpus.List("posts")
	if err != nil {
		return nil, nil, err
	}

	st := &renderState{
		docs:   make(map[string]*document.Document, len(files)),
		hashes: make(map[string]string, len(files)),
	}
	for _, f := range files {
		data, err := s.corpus.Read(f.Path)
		if err != nil {
			st.fail(err)
			continue
		}
		doc, err := document.Parse(f.Path, data)
		if err != nil {
			st.fail(err)
			continue
		}
		st.docs[f.Path] = doc
		st.hashes[f.Path] = f.Checksum
		if err := s.store.PutFileHash(f.Path, f.Checksum); err != nil {
			return nil, nil, err
		}
	}

	load := func(p string) (*document.Document, error) {
		if doc, ok := st.docs[p]; ok {
			return doc, nil
		}
		return nil, fmt.Errorf("render: reference %s not in corpus", p)
	}

	var tops []string
	for p := range st.docs {
		// Referenced ancestor posts live one directory deeper and are not
		// threads of their own.
		if strings.Count(p, "/") == 1 {
			tops = append(tops, p)
		}
	}
	sort.Strings(tops)

	threads := make([]*document.Thread, 0, len(tops))
	for _, p := range tops {
		threads = append(threads, document.Assemble(st.docs[p], load))
	}
	return st, threads, nil
}

// hashOf resolves a live content hash: post sources from the corpus walk,
// site artifacts by reading them back.
func (s *Scheduler) hashOf(st *renderState) cache.Hasher {
	return func(p string) (string, error) {
		if h, ok := st.hashes[p]; ok {
			return h, nil
		}
		data, err := s.site.Read(p)
		if err != nil {
			return "", err
		}
		return checksum.Sum(data), nil
	}
}

// threadHash combines the live hashes of every post in a thread into the
// identity that keys its cached renderings.
func (st *renderState) threadHash(t *document.Thread) string {
	var b strings.Builder
	for _, p := range t.Posts {
		b.WriteString(p.Path)
		b.WriteByte('=')
		b.WriteString(st.hashes[p.Path])
		b.WriteByte('\n')
	}
	return checksum.Sum([]byte(b.String()))
}

// fragments returns the thread's normal and simple renderings, from the
// thread cache when the hash still matches, otherwise through the build
// store. Both renderings are recomputed and stored together.
func (s *Scheduler) fragments(t *document.Thread, st *renderState) (normal, simple []byte, err error) {
	hash := st.threadHash(t)
	if cached, err := s.store.ThreadRenderings(t.Path, hash); err != nil {
		return nil, nil, err
	} else if cached != nil {
		return []byte(cached.Normal), []byte(cached.Simple), nil
	}

	render := func(mode string, simpleForm bool) ([]byte, error) {
		return s.builds.GetOrCompute(build.Derivation{
			Kind:   "ThreadFragment",
			Inputs: map[string]string{"path": t.Path, "hash": hash, "mode": mode},
		}, func() ([]byte, error) {
			return s.renderer.ThreadFragment(t, simpleForm)
		})
	}
	if normal, err = render("normal", false); err != nil {
		return nil, nil, err
	}
	if simple, err = render("simple", true); err != nil {
		return nil, nil, err
	}
	if err := s.store.PutThreadRenderings(t.Path, hash, string(normal), string(simple)); err != nil {
		return nil, nil, err
	}
	return normal, simple, nil
}

// sitePagePath maps a thread to its page path in the site tree.
func sitePagePath(t *document.Thread) string {
	return strings.TrimPrefix(t.RenderedFilename(), "posts/")
}

func (s *Scheduler) renderPostPage(t *document.Thread, st *renderState) error {
	out := sitePagePath(t)
	stale, err := s.store.IsStale(out, s.hashOf(st))
	if err != nil {
		return err
	}
	if !stale {
		st.count(false)
		return nil
	}

	normal, _, err := s.fragments(t, st)
	if err != nil {
		return err
	}
	page, err := s.renderer.Page(t.OverallTitle(), "", normal)
	if err != nil {
		return err
	}
	if err := s.writeArtifact(out, page, threadNeeds(t)); err != nil {
		return err
	}
	st.count(true)
	s.log.Debug("rendered post page", "path", out)
	return nil
}

// writeArtifact writes a site file and records its dependency edges in one
// go, so staleness checks next run see a consistent pair.
func (s *Scheduler) writeArtifact(out string, content []byte, needs []string) error {
	if err := s.site.Write(out, content); err != nil {
		return err
	}
	return s.store.ReplaceDependencies(out, checksum.Sum(content), needs)
}

func threadNeeds(t *document.Thread) []string {
	needs := make([]string, 0, len(t.Posts))
	for _, p := range t.Posts {
		needs = append(needs, p.Path)
	}
	return needs
}

// renderListings writes the collection pages, tag pages, the feeds and the
// interesting-output manifest. Listings depend on every thread they show, so
// they are stale exactly when one of those posts changed.
func (s *Scheduler) renderListings(threads []*document.Thread, classes map[string]classification, st *renderState) error {
	collections := map[string][]*document.Thread{}
	byTag := map[string][]*document.Thread{}
	for _, t := range threads {
		c := classes[t.Path]
		for _, key := range c.collections {
			collections[key] = append(collections[key], t)
		}
		for _, tag := range c.interestingTags {
			byTag[tag] = append(byTag[tag], t)
		}
	}
	for _, list := range collections {
		sort.Slice(list, func(i, j int) bool {
			return document.ReverseChronological(list[i], list[j]) < 0
		})
	}
	for _, list := range byTag {
		sort.Slice(list, func(i, j int) bool {
			return document.ReverseChronological(list[i], list[j]) < 0
		})
	}

	for key, title := range collectionTitles {
		feedHref := ""
		if key == CollectionIndex {
			feedHref = "index.feed.xml"
		}
		if err := s.renderListing(key+".html", title, feedHref, collections[key], st); err != nil {
			st.fail(err)
		}
	}

	if err := s.renderFeed("index.feed.xml", s.settings.SiteTitle, collections[CollectionIndex], st); err != nil {
		st.fail(err)
	}

	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		list := byTag[tag]
		pageTitle := "#" + tag
		if err := s.renderListing(path.Join("tagged", tag+".html"), pageTitle, path.Join("tagged", tag+".feed.xml"), list, st); err != nil {
			st.fail(err)
		}
		feedTitle := s.settings.SiteTitle + " | " + tag
		if err := s.renderFeed(path.Join("tagged", tag+".feed.xml"), feedTitle, list, st); err != nil {
			st.fail(err)
		}
	}

	return s.writeManifest(collections[CollectionIndex])
}

func (s *Scheduler) renderListing(out, title, feedHref string, list []*document.Thread, st *renderState) error {
	needs := listingNeeds(list)
	stale, err := s.store.IsStale(out, s.hashOf(st))
	if err != nil {
		return err
	}
	if !stale {
		st.count(false)
		return nil
	}

	var content []byte
	for _, t := range list {
		normal, _, err := s.fragments(t, st)
		if err != nil {
			return err
		}
		content = append(content, normal...)
	}
	page, err := s.renderer.Page(title, feedHref, content)
	if err != nil {
		return err
	}
	if err := s.writeArtifact(out, page, needs); err != nil {
		return err
	}
	st.count(true)
	s.log.Debug("rendered listing", "path", out, "threads", len(list))
	return nil
}

func (s *Scheduler) renderFeed(out, title string, list []*document.Thread, st *renderState) error {
	stale, err := s.store.IsStale(out, s.hashOf(st))
	if err != nil {
		return err
	}
	if !stale {
		st.count(false)
		return nil
	}

	entries := make([]feedEntry, 0, len(list))
	for _, t := range list {
		_, simple, err := s.fragments(t, st)
		if err != nil {
			return err
		}
		entries = append(entries, feedEntry{thread: t, href: sitePagePath(t), simple: simple})
	}
	feed, err := atomFeedXML(title, entries)
	if err != nil {
		return err
	}
	if err := s.writeArtifact(out, feed, listingNeeds(list)); err != nil {
		return err
	}
	st.count(true)
	s.log.Debug("rendered feed", "path", out, "entries", len(entries))
	return nil
}

func listingNeeds(list []*document.Thread) []string {
	var needs []string
	for _, t := range list {
		needs = append(needs, threadNeeds(t)...)
	}
	return needs
}

// writeManifest lists every file in the default site output, newest thread
// first, so deploys can pick up exactly the interesting subset.
func (s *Scheduler) writeManifest(index []*document.Thread) error {
	if s.settings.InterestingOutputFilenames == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("index.html\nindex.feed.xml\n")
	for _, tag := range s.settings.interestingTagsSorted() {
		b.WriteString("tagged/" + tag + ".feed.xml\n")
		b.WriteString("tagged/" + tag + ".html\n")
	}
	for _, t := range index {
		b.WriteString(sitePagePath(t) + "\n")
	}
	content := []byte(b.String())
	if prev, err := s.site.Read(s.settings.InterestingOutputFilenames); err == nil && bytes.Equal(prev, content) {
		return nil
	}
	return s.site.Write(s.settings.InterestingOutputFilenames, content)
}
