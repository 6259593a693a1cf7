// Package httpcache caches whole HTTP responses in a shared key-value
// backend, keyed by request URI. It degrades to pass-through when the
// backend is unreachable.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// Store is the cache backend. Recoverable names the backend's policy for
// which errors mean "treat as a bypass" rather than a real fault.
type Store interface {
	// GetBody returns the cached body for key, reporting presence.
	GetBody(ctx context.Context, key string) (string, bool, error)
	// GetHeaders returns the cached header map for key; missing keys
	// yield an empty map.
	GetHeaders(ctx context.Context, key string) (map[string]string, error)
	// Put stores a response body and its headers under their keys with
	// the given TTL.
	Put(ctx context.Context, bodyKey, headersKey, body string, headers map[string]string, ttl time.Duration) error
	// Recoverable reports whether err is a transient backend failure.
	Recoverable(err error) bool
}

// Option customises the filter.
type Option func(*filter)

// WithPrefix overrides the key namespace (default "cache").
func WithPrefix(prefix string) Option {
	return func(f *filter) { f.prefix = prefix }
}

// WithTTL overrides the per-request TTL function (default 5 minutes).
func WithTTL(ttl func(*http.Request) time.Duration) Option {
	return func(f *filter) { f.ttl = ttl }
}

// WithKey overrides the cache key function (default: full request URI).
func WithKey(key func(*http.Request) string) Option {
	return func(f *filter) { f.key = key }
}

type filter struct {
	store  Store
	events observability.Sink
	prefix string
	ttl    func(*http.Request) time.Duration
	key    func(*http.Request) string
}

// Filter wraps a downstream handler with response caching. Lookup hits
// replay the cached body and headers on a fresh 200 without calling
// downstream; misses call downstream and store successful responses.
// Recoverable backend failures fall back to the downstream response
// uncached; store failures after a response are always swallowed.
func Filter(store Store, events observability.Sink, opts ...Option) func(http.Handler) http.Handler {
	f := &filter{
		store:  store,
		events: events,
		prefix: "cache",
		ttl:    func(*http.Request) time.Duration { return 5 * time.Minute },
		key:    func(r *http.Request) string { return r.URL.RequestURI() },
	}
	for _, opt := range opts {
		opt(f)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.serve(w, r, next)
		})
	}
}

func (f *filter) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	key := f.key(r)
	bodyKey := f.prefix + ":body:" + key
	headersKey := f.prefix + ":headers:" + key

	body, found, err := f.store.GetBody(r.Context(), bodyKey)
	if err != nil {
		if f.store.Recoverable(err) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "cache backend failure", http.StatusInternalServerError)
		return
	}

	if found {
		headers, err := f.store.GetHeaders(r.Context(), headersKey)
		if err != nil {
			if f.store.Recoverable(err) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "cache backend failure", http.StatusInternalServerError)
			return
		}

		f.events.Emit(observability.CacheEvent{Type: observability.CacheHit, URI: r.URL.RequestURI(), Key: bodyKey})
		replayHeaders(w.Header(), headers)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
		return
	}

	f.events.Emit(observability.CacheEvent{Type: observability.CacheMiss, URI: r.URL.RequestURI(), Key: bodyKey})

	rec := newRecorder()
	next.ServeHTTP(rec, r)
	rec.copyTo(w)

	if rec.status != http.StatusOK {
		return
	}

	f.events.Emit(observability.CacheEvent{Type: observability.CacheInsert, URI: r.URL.RequestURI(), Key: bodyKey})
	// Idempotent recomputations of a deterministic query: last writer wins,
	// and a failed write only costs a future recompute.
	_ = f.store.Put(r.Context(), bodyKey, headersKey, rec.body.String(), flattenHeaders(rec.Header()), f.ttl(r))
}

// SHA256Key derives a fixed-length hex cache key from a request URI, for
// deployments whose URIs exceed sensible key lengths.
func SHA256Key(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// headerValueSep joins multi-valued headers inside the backend's flat
// string map; it cannot appear in a valid header value.
const headerValueSep = "\n"

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		flat[name] = strings.Join(values, headerValueSep)
	}
	return flat
}

func replayHeaders(dst http.Header, flat map[string]string) {
	for name, joined := range flat {
		for _, v := range strings.Split(joined, headerValueSep) {
			dst.Add(name, v)
		}
	}
}

// recorder buffers a downstream response so it can be both returned to
// the client and written to the cache.
type recorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *recorder) copyTo(w http.ResponseWriter) {
	for name, values := range r.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
