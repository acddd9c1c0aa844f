package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "schedcal/internal/log"
)

const (
	defaultCacheDir     = "./var/ics-cache"
	defaultFetchTimeout = 15 * time.Second

	// DefaultMaxFeedBytes caps a downloaded feed body. Larger responses are
	// rejected instead of being buffered; a year of a busy shared calendar
	// is well under 1 MiB.
	DefaultMaxFeedBytes int64 = 10 << 20

	metaFileName = "meta.json"
	bodyFileName = "body.ics"
)

// Source is one calendar feed to import events from.
type Source struct {
	// ID names the feed in logs.
	ID string
	// URL is an http(s) endpoint, a file:// URL or a plain local path.
	URL string
}

// FetchResult is the body obtained for one source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // body came from the disk cache (304 or fallback)
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedCache is the on-disk cache slot of one remote URL.
type feedCache struct {
	dir string
}

func (c feedCache) load() (cacheMeta, []byte) {
	var meta cacheMeta
	if data, err := os.ReadFile(filepath.Join(c.dir, metaFileName)); err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	body, _ := os.ReadFile(filepath.Join(c.dir, bodyFileName))
	return meta, body
}

// store writes body before meta so meta never points at a missing body.
func (c feedCache) store(meta cacheMeta, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(c.dir, bodyFileName), body); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(c.dir, metaFileName), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Fetcher downloads calendar feeds with conditional requests (ETag /
// Last-Modified) and falls back to the last good body when a feed is
// unreachable. Local files are read directly and never cached.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxBytes int64
}

// NewFetcher creates a Fetcher caching under cacheDir, e.g.
// "/var/lib/schedcal/ics-cache". Empty means defaultCacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	return &Fetcher{
		client:   &http.Client{Timeout: defaultFetchTimeout},
		cacheDir: cacheDir,
		maxBytes: DefaultMaxFeedBytes,
	}
}

// SetMaxBodySize changes the remote body cap. n <= 0 restores
// DefaultMaxFeedBytes.
func (f *Fetcher) SetMaxBodySize(n int64) {
	if n <= 0 {
		n = DefaultMaxFeedBytes
	}
	f.maxBytes = n
}

// FetchAll fetches every source in order. Only sources that produced a
// body appear in the results; failures are logged and returned in errs.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	if path, ok := localPath(src.URL); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			return FetchResult{}, err
		}
		appLog.Debug("ics read local file", "id", src.ID, "path", path, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil
	}

	cache := f.cacheFor(src.URL)
	meta, cached := cache.load()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	fromCache := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Warn("ics fetch failed; using cached body", "id", src.ID, "url", redactURL(src.URL), "cause", cause.Error())
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return fromCache(err)
		}
		if int64(len(body)) > f.maxBytes {
			return fromCache(fmt.Errorf("feed exceeds %d bytes", f.maxBytes))
		}
		next := cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := cache.store(next, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics feed not modified", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fromCache(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// cacheFor keys the cache slot by the first 8 bytes of the URL's SHA-256.
func (f *Fetcher) cacheFor(rawURL string) feedCache {
	sum := sha256.Sum256([]byte(rawURL))
	return feedCache{dir: filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))}
}

// localPath reports whether u names a local file and returns its path.
func localPath(u string) (string, bool) {
	switch {
	case strings.HasPrefix(u, "file://"):
		return strings.TrimPrefix(u, "file://"), true
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return "", false
	default:
		return u, true
	}
}

// redactURL keeps only scheme and host; feed URLs often carry secret
// tokens in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if _, ok := localPath(raw); ok {
			return raw
		}
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
