package build

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/starford/hearth/internal/cache"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "hearth-build-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	c, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return New(c)
}

func TestNormalizeIsOrderIndependent(t *testing.T) {
	a := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "p", "hash": "h"}}
	b := Derivation{Kind: "RenderThread", Inputs: map[string]string{"hash": "h", "path": "p"}}

	idA, _, err := a.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	idB, _, err := b.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	if idA != idB {
		t.Errorf("identities differ: %s vs %s", idA, idB)
	}

	c := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "q", "hash": "h"}}
	idC, _, _ := c.Normalize()
	if idC == idA {
		t.Error("different inputs must produce different identities")
	}
}

func TestNormalizeRejectsBadDerivations(t *testing.T) {
	if _, _, err := (Derivation{}).Normalize(); err == nil {
		t.Error("missing kind should fail")
	}
	bad := Derivation{Kind: "X", Inputs: map[string]string{"a=b": "v"}}
	if _, _, err := bad.Normalize(); err == nil {
		t.Error("separator in key should fail")
	}
}

func TestGetOrComputeMemoizes(t *testing.T) {
	s := testStore(t)
	drv := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "a.html", "hash": "h1"}}

	var calls atomic.Int32
	compute := func() ([]byte, error) {
		calls.Add(1)
		return []byte("output"), nil
	}

	first, err := s.GetOrCompute(drv, compute)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetOrCompute(drv, compute)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "output" || string(second) != "output" {
		t.Errorf("outputs = %q, %q", first, second)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compute called %d times, want 1", n)
	}
}

func TestGetOrComputePersistsAcrossHandles(t *testing.T) {
	f, err := os.CreateTemp("", "hearth-build-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	drv := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "a.html"}}

	c1, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(c1).GetOrCompute(drv, func() ([]byte, error) { return []byte("once"), nil }); err != nil {
		t.Fatal(err)
	}
	c1.Close()

	// A fresh handle simulates a process restart: the persisted output must
	// satisfy the derivation without recomputation.
	c2, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	out, err := New(c2).GetOrCompute(drv, func() ([]byte, error) {
		return nil, errors.New("must not recompute")
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "once" {
		t.Errorf("output = %q", out)
	}
}

func TestGetOrComputePersistsEmptyOutput(t *testing.T) {
	f, err := os.CreateTemp("", "hearth-build-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	drv := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "empty.html"}}

	c1, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(c1).GetOrCompute(drv, func() ([]byte, error) { return []byte{}, nil }); err != nil {
		t.Fatal(err)
	}
	c1.Close()

	// An empty output is still an output: a restart must not recompute it.
	c2, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	out, err := New(c2).GetOrCompute(drv, func() ([]byte, error) {
		return nil, errors.New("must not recompute")
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("output = %q", out)
	}
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	s := testStore(t)
	drv := Derivation{Kind: "RenderThread", Inputs: map[string]string{"path": "bad"}}
	if _, err := s.GetOrCompute(drv, func() ([]byte, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Error("compute error should propagate")
	}

	// A failed computation is not cached; the next call retries.
	out, err := s.GetOrCompute(drv, func() ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(out) != "ok" {
		t.Errorf("retry: out=%q err=%v", out, err)
	}
}
