package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/npmfence/pkg/cache"
	pkgerrors "github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/observability"
)

const (
	// DefaultManifestTTL is how long downloaded manifests stay cached.
	DefaultManifestTTL = 24 * time.Hour

	// maxManifestSize bounds a downloaded manifest.
	maxManifestSize = 10 << 20

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
)

// HTTPOptions configures an HTTPFinder. The zero value is usable.
type HTTPOptions struct {
	Cache    cache.Cache       // Response cache (default: NullCache)
	Keyer    cache.Keyer       // Cache key layout (default: DefaultKeyer)
	TTL      time.Duration     // Cache TTL (default: DefaultManifestTTL)
	Headers  map[string]string // Headers sent with every request
	Refresh  bool              // Bypass cached responses
	Client   *http.Client      // HTTP client (default: 30s timeout)
	Attempts int               // Attempts per resource (default: 3)
	Delay    time.Duration     // Initial retry delay (default: 1s)
}

// HTTPFinder downloads resources from baseURL/<name>. Network failures and
// 5xx responses are retried with exponential backoff; 404 maps to
// ErrNotFound. Successful responses are cached.
type HTTPFinder struct {
	baseURL string
	opts    HTTPOptions
}

// NewHTTPFinder creates a finder rooted at baseURL.
func NewHTTPFinder(baseURL string, opts HTTPOptions) *HTTPFinder {
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultManifestTTL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	return &HTTPFinder{baseURL: strings.TrimRight(baseURL, "/"), opts: opts}
}

// Find implements Finder.
func (f *HTTPFinder) Find(ctx context.Context, name string) ([]byte, error) {
	if err := pkgerrors.ValidateResourceName(name); err != nil {
		return nil, err
	}
	target := f.baseURL + "/" + name
	if err := pkgerrors.ValidateURL(target); err != nil {
		return nil, err
	}
	key := f.opts.Keyer.ManifestKey(target)

	if !f.opts.Refresh {
		if data, hit, _ := f.opts.Cache.Get(ctx, key); hit {
			observability.Cache().OnCacheHit(ctx, "manifest")
			return data, nil
		}
		observability.Cache().OnCacheMiss(ctx, "manifest")
	}

	var data []byte
	err := cache.Retry(ctx, f.opts.Attempts, f.opts.Delay, func() error {
		var err error
		data, err = f.get(ctx, target)
		return err
	})
	if err != nil {
		return nil, classify(err, target)
	}

	if err := f.opts.Cache.Set(ctx, key, data, f.opts.TTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "manifest", len(data))
	}
	return data, nil
}

func (f *HTTPFinder) get(ctx context.Context, target string) ([]byte, error) {
	host, path := splitURL(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	observability.HTTP().OnRequest(ctx, req.Method, host, path)
	start := time.Now()
	resp, err := f.opts.Client.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, host, path, err)
		return nil, cache.Retryable(fmt.Errorf("%w: %w", cache.ErrNetwork, err))
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, target); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, cache.Retryable(fmt.Errorf("%w: read body: %w", cache.ErrNetwork, err))
	}
	return data, nil
}

// classify gives a failed download its error code. ErrNotFound and
// cancellation pass through unchanged.
func classify(err error, target string) error {
	var netErr net.Error
	switch {
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, context.Canceled):
		return err
	case stderrors.Is(err, context.DeadlineExceeded),
		stderrors.As(err, &netErr) && netErr.Timeout():
		return pkgerrors.Wrap(pkgerrors.ErrCodeTimeout, err, "fetch %s: timed out", target)
	default:
		return pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "fetch %s", target)
	}
}

func checkStatus(code int, target string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}

func splitURL(raw string) (host, path string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw
	}
	return u.Host, u.Path
}
