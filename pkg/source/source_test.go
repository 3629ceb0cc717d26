package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/matzehuels/npmfence/pkg/cache"
	pkgerrors "github.com/matzehuels/npmfence/pkg/errors"
)

func TestDirFinder(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"vaadin-versions.json": {Data: []byte(`{"platform":"24.4.0"}`)},
	}
	f := NewDirFinder(fsys)

	data, err := f.Find(ctx, "vaadin-versions.json")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if string(data) != `{"platform":"24.4.0"}` {
		t.Errorf("Find data = %s", data)
	}

	if _, err := f.Find(ctx, "vaadin-core-versions.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find missing error = %v, want ErrNotFound", err)
	}

	if _, err := f.Find(ctx, "../secret.json"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Find traversal error = %v, want validation error", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	first := NewDirFinder(fstest.MapFS{
		"a.json": {Data: []byte("first-a")},
	})
	second := NewDirFinder(fstest.MapFS{
		"a.json": {Data: []byte("second-a")},
		"b.json": {Data: []byte("second-b")},
	})
	c := Chain{nil, first, second}

	tests := []struct {
		name string
		want string
	}{
		{"a.json", "first-a"},
		{"b.json", "second-b"},
	}
	for _, tt := range tests {
		data, err := c.Find(ctx, tt.name)
		if err != nil {
			t.Fatalf("Find(%q) error: %v", tt.name, err)
		}
		if string(data) != tt.want {
			t.Errorf("Find(%q) = %s, want %s", tt.name, data, tt.want)
		}
	}

	if _, err := c.Find(ctx, "c.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(c.json) error = %v, want ErrNotFound", err)
	}
}

func TestChainStopsOnHardError(t *testing.T) {
	boom := errors.New("boom")
	c := Chain{
		FinderFunc(func(context.Context, string) ([]byte, error) { return nil, boom }),
		NewDirFinder(fstest.MapFS{"a.json": {Data: []byte("a")}}),
	}
	if _, err := c.Find(context.Background(), "a.json"); !errors.Is(err, boom) {
		t.Errorf("Find error = %v, want boom", err)
	}
}

func TestHTTPFinder(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/24.4/vaadin-versions.json":
			w.Write([]byte(`{"platform":"24.4.0"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := NewHTTPFinder(srv.URL+"/24.4/", HTTPOptions{Cache: fc, Delay: time.Millisecond})

	data, err := f.Find(ctx, "vaadin-versions.json")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if string(data) != `{"platform":"24.4.0"}` {
		t.Errorf("Find data = %s", data)
	}

	// Second lookup is served from cache.
	if _, err := f.Find(ctx, "vaadin-versions.json"); err != nil {
		t.Fatalf("cached Find error: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}

	if _, err := f.Find(ctx, "vaadin-core-versions.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find missing error = %v, want ErrNotFound", err)
	}
}

func TestHTTPFinderRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFinder(srv.URL, HTTPOptions{Delay: time.Millisecond})
	if _, err := f.Find(context.Background(), "vaadin-versions.json"); err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestHTTPFinderClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFinder(srv.URL, HTTPOptions{Delay: time.Millisecond})
	_, err := f.Find(context.Background(), "vaadin-versions.json")
	if !errors.Is(err, cache.ErrNetwork) {
		t.Errorf("Find error = %v, want ErrNetwork", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("403 must not be reported as not found")
	}
	if !pkgerrors.Is(err, pkgerrors.ErrCodeNetwork) {
		t.Errorf("code = %s, want %s", pkgerrors.GetCode(err), pkgerrors.ErrCodeNetwork)
	}
}

func TestHTTPFinderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := NewHTTPFinder(srv.URL, HTTPOptions{
		Client:   &http.Client{Timeout: 50 * time.Millisecond},
		Attempts: 1,
	})
	_, err := f.Find(context.Background(), "vaadin-versions.json")
	if !pkgerrors.Is(err, pkgerrors.ErrCodeTimeout) {
		t.Errorf("Find error = %v, want code %s", err, pkgerrors.ErrCodeTimeout)
	}
	if !errors.Is(err, cache.ErrNetwork) {
		t.Errorf("Find error = %v, should still wrap ErrNetwork", err)
	}
}

func TestHTTPFinderCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewHTTPFinder(srv.URL, HTTPOptions{Delay: time.Millisecond})
	if _, err := f.Find(ctx, "vaadin-versions.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("Find error = %v, want context.Canceled", err)
	}
}
