// Package build implements the content-addressed build store: a pure
// computation (derivation) is identified by a deterministic hash of its
// normalized description, and its output is memoized both in process and in
// the persisted cache store, across runs and restarts.
package build

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/hearth/internal/cache"
	"github.com/starford/hearth/internal/checksum"
)

// Derivation describes one deterministic computation: a kind plus its
// canonicalized inputs. Two derivations with the same normalized description
// have the same identity and therefore the same output, forever.
type Derivation struct {
	Kind   string
	Inputs map[string]string
}

// Normalize returns the derivation's identity and human-readable
// description. Inputs are ordered by key so identity never depends on map
// iteration order. A derivation without a kind, or with an input whose key
// embeds the field separator, cannot be normalized; that is fatal to the
// run, not retryable.
func (d Derivation) Normalize() (id string, details string, err error) {
	if d.Kind == "" {
		return "", "", fmt.Errorf("build: derivation has no kind")
	}
	keys := make([]string, 0, len(d.Inputs))
	for k := range d.Inputs {
		if k == "" || strings.ContainsAny(k, "=\n") {
			return "", "", fmt.Errorf("build: derivation %s: non-normalizable input key %q", d.Kind, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Kind)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(d.Inputs[k])
	}
	canonical := b.String()
	return checksum.Sum([]byte(canonical)), canonical, nil
}

// Store memoizes derivation outputs. Concurrent identical builds collapse to
// one computation via singleflight; completed outputs live in an in-process
// map backed by the persisted cache store.
type Store struct {
	cache *cache.Store

	group singleflight.Group

	mu   sync.RWMutex
	memo map[string][]byte
}

// New creates a build store on top of the persisted cache store.
func New(c *cache.Store) *Store {
	return &Store{cache: c, memo: make(map[string][]byte)}
}

// GetOrCompute returns the cached output for the derivation, computing and
// persisting it on first sight. compute is never invoked when a matching
// output already exists.
func (s *Store) GetOrCompute(drv Derivation, compute func() ([]byte, error)) ([]byte, error) {
	id, details, err := drv.Normalize()
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		s.mu.RLock()
		out, ok := s.memo[id]
		s.mu.RUnlock()
		if ok {
			return out, nil
		}

		out, ok, err := s.cache.Output(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			if out, err = compute(); err != nil {
				return nil, fmt.Errorf("build: compute %s: %w", drv.Kind, err)
			}
			if err := s.cache.PutDerivation(id, details, id, out); err != nil {
				return nil, err
			}
		}

		s.mu.Lock()
		s.memo[id] = out
		s.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
