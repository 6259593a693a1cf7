package httpcache_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewagewatch/cso-live-service/internal/adapter/httpcache"
	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	bodies  map[string]string
	headers map[string]map[string]string
	ttls    map[string]time.Duration

	getErr      error
	putErr      error
	recoverable bool
	puts        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bodies:  map[string]string{},
		headers: map[string]map[string]string{},
		ttls:    map[string]time.Duration{},
	}
}

func (f *fakeStore) GetBody(_ context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	body, ok := f.bodies[key]
	return body, ok, nil
}

func (f *fakeStore) GetHeaders(_ context.Context, key string) (map[string]string, error) {
	return f.headers[key], nil
}

func (f *fakeStore) Put(_ context.Context, bodyKey, headersKey, body string, headers map[string]string, ttl time.Duration) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.bodies[bodyKey] = body
	f.headers[headersKey] = headers
	f.ttls[bodyKey] = ttl
	return nil
}

func (f *fakeStore) Recoverable(error) bool { return f.recoverable }

func eventCollector() (*[]observability.Event, observability.Sink) {
	events := &[]observability.Event{}
	return events, observability.SinkFunc(func(e observability.Event) { *events = append(*events, e) })
}

func cacheEventTypes(events []observability.Event) []observability.CacheEventType {
	var types []observability.CacheEventType
	for _, e := range events {
		if ce, ok := e.(observability.CacheEvent); ok {
			types = append(types, ce.Type)
		}
	}
	return types
}

func downstream(calls *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public,max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestFilter_MissThenHit(t *testing.T) {
	store := newFakeStore()
	events, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink)(downstream(&calls))

	first := get(t, h, "/api/v1/live/summary")
	second := get(t, h, "/api/v1/live/summary")

	assert.Equal(t, int64(1), calls.Load(), "downstream called only on the miss")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Header(), second.Header(), "replayed headers must match the original response")

	assert.Equal(t,
		[]observability.CacheEventType{observability.CacheMiss, observability.CacheInsert, observability.CacheHit},
		cacheEventTypes(*events))
}

func TestFilter_KeysAreNamespaced(t *testing.T) {
	store := newFakeStore()
	_, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink, httpcache.WithPrefix("pages"))(downstream(&calls))
	get(t, h, "/api/v1/live/summary?since=2024-01-01")

	assert.Contains(t, store.bodies, "pages:body:/api/v1/live/summary?since=2024-01-01")
	assert.Contains(t, store.headers, "pages:headers:/api/v1/live/summary?since=2024-01-01")
}

func TestFilter_CustomTTLAndKey(t *testing.T) {
	store := newFakeStore()
	_, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink,
		httpcache.WithTTL(func(*http.Request) time.Duration { return time.Hour }),
		httpcache.WithKey(func(r *http.Request) string { return httpcache.SHA256Key(r.URL.RequestURI()) }),
	)(downstream(&calls))

	get(t, h, "/api/v1/live/summary")

	wantKey := "cache:body:" + httpcache.SHA256Key("/api/v1/live/summary")
	require.Contains(t, store.bodies, wantKey)
	assert.Equal(t, time.Hour, store.ttls[wantKey])
}

func TestFilter_NonSuccessResponsesNotCached(t *testing.T) {
	store := newFakeStore()
	events, sink := eventCollector()

	h := httpcache.Filter(store, sink)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rec := get(t, h, "/api/v1/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, store.puts)
	assert.Equal(t, []observability.CacheEventType{observability.CacheMiss}, cacheEventTypes(*events))
}

func TestFilter_RecoverableLookupFailureBypasses(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	store.recoverable = true
	_, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink)(downstream(&calls))
	rec := get(t, h, "/api/v1/live/summary")

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"ok":true}`, rec.Body.String(), "response is the downstream's own, uncached")
}

func TestFilter_NonRecoverableLookupFailureIs500(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("WRONGTYPE operation against a key")
	store.recoverable = false
	_, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink)(downstream(&calls))
	rec := get(t, h, "/api/v1/live/summary")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, calls.Load())
}

func TestFilter_StoreFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("read timeout")
	events, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink)(downstream(&calls))
	rec := get(t, h, "/api/v1/live/summary")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, 1, store.puts)
	// INSERT is emitted before the attempt; the failed write is silent.
	assert.Equal(t,
		[]observability.CacheEventType{observability.CacheMiss, observability.CacheInsert},
		cacheEventTypes(*events))
}

func TestFilter_MultiValuedHeadersSurviveRoundTrip(t *testing.T) {
	store := newFakeStore()
	_, sink := eventCollector()
	var calls atomic.Int64

	h := httpcache.Filter(store, sink)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Add("Vary", "Accept")
		w.Header().Add("Vary", "Accept-Encoding")
		_, _ = w.Write([]byte("ok"))
	}))

	first := get(t, h, "/api/v1/live/summary")
	second := get(t, h, "/api/v1/live/summary")

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, []string{"Accept", "Accept-Encoding"}, first.Header().Values("Vary"))
	assert.Equal(t, first.Header().Values("Vary"), second.Header().Values("Vary"))
}

func TestSHA256Key_Deterministic(t *testing.T) {
	a := httpcache.SHA256Key("/api/v1/live/summary")
	b := httpcache.SHA256Key("/api/v1/live/summary")
	c := httpcache.SHA256Key("/api/v1/live/summary?x=1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
