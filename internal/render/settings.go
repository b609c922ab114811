package render

import (
	"sort"

	"github.com/starford/hearth/internal/document"
)

// Collection keys, in the order their pages are written.
const (
	CollectionIndex               = "index"
	CollectionAll                 = "all"
	CollectionUntaggedInteresting = "untagged_interesting"
	CollectionExcluded            = "excluded"
	CollectionMarkedInteresting   = "marked_interesting"
	CollectionSkippedOwn          = "skipped_own"
	CollectionSkippedOther        = "skipped_other"
)

var collectionTitles = map[string]string{
	CollectionIndex:               "posts",
	CollectionAll:                 "all posts",
	CollectionUntaggedInteresting: "untagged interesting posts",
	CollectionExcluded:            "archived posts that were marked excluded",
	CollectionMarkedInteresting:   "archived posts that were marked interesting",
	CollectionSkippedOwn:          "own skipped archived posts",
	CollectionSkippedOther:        "others' skipped archived posts",
}

// Settings controls which threads land in the default site output.
type Settings struct {
	SiteTitle string `yaml:"site_title"`

	// SelfAuthorURL identifies posts composed here rather than archived.
	SelfAuthorURL string `yaml:"self_author_url"`

	// OtherSelfAuthors lists author URLs that were also ours on the archived
	// platform, used to tell own skipped threads from others'.
	OtherSelfAuthors []string `yaml:"other_self_authors"`

	InterestingTags []string `yaml:"interesting_tags"`

	// Per-thread overrides, matched against the thread's origin link.
	InterestingArchived []string `yaml:"interesting_archived"`
	ExcludedArchived    []string `yaml:"excluded_archived"`

	// InterestingOutputFilenames is the site-relative path of the manifest
	// listing every default-output file, written when non-empty.
	InterestingOutputFilenames string `yaml:"interesting_output_filenames"`
}

func (s Settings) tagIsInteresting(tag string) bool {
	for _, t := range s.InterestingTags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s Settings) onList(list []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, entry := range list {
		if entry == origin {
			return true
		}
	}
	return false
}

// interestingTagsSorted returns the interesting tags in listing order.
func (s Settings) interestingTagsSorted() []string {
	tags := append([]string(nil), s.InterestingTags...)
	sort.Strings(tags)
	return tags
}

// classification is the outcome of the interesting-set decision for one
// thread: which collections it belongs to, and which interesting tags it
// files under. Computed before any rendering is dispatched.
type classification struct {
	collections     []string
	interestingTags []string
}

// classify decides where a thread belongs. The decision tree mirrors how the
// archive distinguishes composed posts, per-thread overrides, and tag
// interest, in that priority order.
func (s Settings) classify(t *document.Thread) classification {
	meta := t.Meta()
	c := classification{collections: []string{CollectionAll}}

	interesting := false
	switch {
	case meta.Origin == "" && meta.Author != nil && meta.Author.URL == s.SelfAuthorURL:
		interesting = true
	case s.onList(s.ExcludedArchived, meta.Origin):
		c.collections = append(c.collections, CollectionExcluded)
	case s.onList(s.InterestingArchived, meta.Origin):
		c.collections = append(c.collections, CollectionMarkedInteresting)
		interesting = true
	default:
		for _, tag := range meta.Tags {
			if s.tagIsInteresting(tag) {
				interesting = true
				break
			}
		}
	}

	if interesting {
		c.collections = append(c.collections, CollectionIndex)
		for _, tag := range meta.Tags {
			if s.tagIsInteresting(tag) {
				c.interestingTags = append(c.interestingTags, tag)
			}
		}
		if len(meta.Tags) == 0 {
			c.collections = append(c.collections, CollectionUntaggedInteresting)
		}
		return c
	}

	// Not interesting: did the thread have our own input at publish time?
	last := t.Last()
	ownInput := (!last.Meta.Transparent || len(last.Meta.Tags) > 0) &&
		last.Meta.Author != nil && s.onList(s.OtherSelfAuthors, last.Meta.Author.URL)
	if ownInput {
		c.collections = append(c.collections, CollectionSkippedOwn)
	} else {
		c.collections = append(c.collections, CollectionSkippedOther)
	}
	return c
}
