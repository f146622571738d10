package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/flodq/internal/config"
	"github.com/rzbill/flodq/internal/runtime"
	pebblestore "github.com/rzbill/flodq/internal/storage/pebble"
	logpkg "github.com/rzbill/flodq/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger), rt
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, gojson.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestPushAndInspect(t *testing.T) {
	s, _ := newTestServer(t)
	// "YQ==" "Yg==" are a and b
	w := do(s, http.MethodPost, "/v1/queues/orders/push", `{"end":"tail","payloads":["YQ==","Yg=="]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["len"])

	w = do(s, http.MethodGet, "/v1/queues/orders?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.EqualValues(t, 2, got["len"])
	items := got["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "YQ==", items[0].(map[string]any)["payload"])

	w = do(s, http.MethodGet, "/v1/queues/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orders"`)
}

func TestPushRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/v1/queues/orders/push", `{"end":"middle","payloads":["YQ=="]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/v1/queues/orders/push", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/queues/orders?offset=-1", "").Code)
}

func TestPollFromAny(t *testing.T) {
	s, rt := newTestServer(t)
	e, err := rt.Engine("")
	require.NoError(t, err)
	require.NoError(t, e.PushLast(context.Background(), "b", []byte("x")))

	w := do(s, http.MethodPost, "/v1/queues/poll", `{"queues":["a","b"],"end":"head","timeoutMs":1000}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, true, got["found"])
	assert.Equal(t, "b", got["queue"])
	assert.Equal(t, "eA==", got["payload"])
}

func TestPollZeroTimeoutOnEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	start := time.Now()
	w := do(s, http.MethodPost, "/v1/queues/poll", `{"queues":["a"],"timeoutMs":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "empty", decode(t, w)["outcome"])
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollHugeTimeoutWaits(t *testing.T) {
	s, rt := newTestServer(t)
	e, err := rt.Engine("")
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(s, http.MethodPost, "/v1/queues/poll", `{"queues":["a"],"timeoutMs":9223372036855}`)
	}()
	select {
	case w := <-done:
		t.Fatalf("poll returned before any push: %s", w.Body.String())
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, e.PushLast(context.Background(), "a", []byte("x")))
	select {
	case w := <-done:
		require.Equal(t, http.StatusOK, w.Code)
		got := decode(t, w)
		assert.Equal(t, true, got["found"])
		assert.Equal(t, "eA==", got["payload"])
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not observe the push")
	}
}

// brokenWriter fails every body write, as a connection to a departed
// client does.
type brokenWriter struct{ header http.Header }

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPollUndeliveredElementIsRequeued(t *testing.T) {
	s, rt := newTestServer(t)
	e, err := rt.Engine("")
	require.NoError(t, err)
	require.NoError(t, e.PushLast(context.Background(), "a", []byte("first")))
	require.NoError(t, e.PushLast(context.Background(), "a", []byte("second")))

	req := httptest.NewRequest(http.MethodPost, "/v1/queues/poll", strings.NewReader(`{"queues":["a"],"timeoutMs":0}`))
	s.Handler().ServeHTTP(&brokenWriter{header: http.Header{}}, req)

	items, err := e.Range("a", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", string(items[0].Payload))
	assert.Equal(t, "second", string(items[1].Payload))
}

func TestPollRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/v1/queues/poll", `{"queues":["a"],"timeoutMs":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/v1/queues/poll", `{"queues":[],"timeoutMs":10}`).Code)
}

func TestNamespaces(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/v1/namespaces", `{"namespace":"team-a"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/v1/namespaces", `{"namespace":"Bad Name"}`).Code)
	w := do(s, http.MethodGet, "/v1/namespaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "team-a")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(s, http.MethodGet, "/v1/healthz", "")
	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flodq_http_requests_total")
}
