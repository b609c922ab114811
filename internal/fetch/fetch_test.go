package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/hearth/internal/apperr"
)

func TestFetchOK(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewClient("connect.sid=abc")
	body, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if gotCookie != "connect.sid=abc" {
		t.Errorf("cookie = %q", gotCookie)
	}
}

func TestFetchStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		notFound  bool
		transient bool
	}{
		{http.StatusNotFound, true, false},
		{http.StatusGone, true, false},
		{http.StatusInternalServerError, false, true},
		{http.StatusTooManyRequests, false, true},
		{http.StatusForbidden, false, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewClient("")
		_, err := c.Fetch(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		if apperr.IsNotFound(err) != tc.notFound {
			t.Errorf("status %d: IsNotFound = %v, want %v", tc.status, apperr.IsNotFound(err), tc.notFound)
		}
		if apperr.IsTransient(err) != tc.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.status, apperr.IsTransient(err), tc.transient)
		}
	}
}

func TestFetchContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("")
	if _, err := c.Fetch(ctx, srv.URL); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
