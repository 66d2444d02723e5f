// ABOUTME: Tests for server construction, lifecycle, and shared middleware
// ABOUTME: Uses an in-process fake storage gateway and temp-dir storage

package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/showcase-backend/internal/config"
)

// fakeGateway stores uploads in memory and serves them back by hex SHA-256.
type fakeGateway struct {
	mu         sync.Mutex
	files      map[string][]byte
	uploads    int
	gets       int
	failUpload int // status returned for every upload when non-zero
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		g.uploads++
		if g.failUpload != 0 {
			w.WriteHeader(g.failUpload)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		sum := sha256.Sum256(data)
		fid := hex.EncodeToString(sum[:])
		g.files[fid] = data
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": fid})
	case http.MethodGet, http.MethodHead:
		fid := strings.TrimPrefix(r.URL.Path, "/file/")
		data, ok := g.files[fid]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodGet {
			g.gets++
			_, _ = w.Write(data)
		}
	}
}

func (g *fakeGateway) put(fid string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[fid] = data
}

func (g *fakeGateway) counts() (uploads, gets int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploads, g.gets
}

func testConfig(t *testing.T, gatewayURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Gateway.BaseURL = gatewayURL
	cfg.Gateway.Account = "cXaccount"
	cfg.Gateway.Message = "msg"
	cfg.Gateway.Signature = "sig"
	cfg.Gateway.Territory = "showcase"
	cfg.Gateway.Timeout = 2 * time.Second
	cfg.Storage.DataDir = dir
	cfg.Storage.Path = filepath.Join(dir, "showcase.db")
	cfg.RateLimit.Enabled = false
	return cfg
}

// newTestServer builds a server against a fresh fake gateway. mutate runs
// before construction.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{files: make(map[string][]byte)}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	for _, m := range mutate {
		m(cfg)
	}

	s, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, gw
}

func doRequest(t *testing.T, s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, s *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return doRequest(t, s, method, path, body, "application/json")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

func multipartForm(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.StorageConnected)
	assert.True(t, resp.DatabaseConnected)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

func TestHealth_GatewayDown(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Gateway.BaseURL = "http://127.0.0.1:1"
	})

	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[HealthResponse](t, rec).StorageConnected)
}

func TestHealth_StoreUnavailable(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "json")
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Storage.Backend = config.BackendJSON
		c.Storage.DataDir = dataDir
	})
	require.NoError(t, os.RemoveAll(dataDir))

	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.False(t, resp.DatabaseConnected)
	assert.True(t, resp.StorageConnected)
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/products", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(t, s, http.MethodGet, "/health", nil, "")
	rec := doRequest(t, s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `showcase_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Metrics.Enabled = false })

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerSecond = 0.001
		c.RateLimit.Burst = 1
	})

	rec := doJSON(t, s, http.MethodPost, "/products/register", map[string]any{"name": "a", "price": 1, "seller": "0x1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/products/register", map[string]any{"name": "b", "price": 1, "seller": "0x1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", errorMessage(t, rec))

	rec = doRequest(t, s, http.MethodGet, "/products", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newRateLimiter(1, 1, nil)
	defer rl.Close()

	rl.getLimiter("a")
	rl.evictIdle(time.Now())
	assert.Len(t, rl.limiters, 1)

	rl.evictIdle(time.Now().Add(limiterIdleTTL + time.Second))
	assert.Empty(t, rl.limiters)
}

func TestShutdownPersistsAcrossRestart(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendJSON} {
		t.Run(backend, func(t *testing.T) {
			gw := httptest.NewServer(&fakeGateway{files: make(map[string][]byte)})
			defer gw.Close()
			cfg := testConfig(t, gw.URL)
			cfg.Storage.Backend = backend

			s, err := New(context.Background(), cfg, nil)
			require.NoError(t, err)
			rec := doJSON(t, s, http.MethodPost, "/personas", map[string]any{"wallet_address": "0xABC"})
			require.Equal(t, http.StatusCreated, rec.Code)
			rec = doJSON(t, s, http.MethodPost, "/products/register", map[string]any{"name": "a", "price": 1, "seller": "0x1"})
			require.Equal(t, http.StatusOK, rec.Code)
			require.NoError(t, s.Shutdown(context.Background()))

			s2, err := New(context.Background(), cfg, nil)
			require.NoError(t, err)
			defer s2.Shutdown(context.Background())

			assert.Equal(t, http.StatusOK, doRequest(t, s2, http.MethodGet, "/personas/0xABC", nil, "").Code)
			list := decodeBody[ProductListResponse](t, doRequest(t, s2, http.MethodGet, "/products", nil, ""))
			assert.Equal(t, 1, list.Total)
		})
	}
}

func TestNew_ImportsLegacyJSON(t *testing.T) {
	gw := httptest.NewServer(&fakeGateway{files: make(map[string][]byte)})
	defer gw.Close()
	cfg := testConfig(t, gw.URL)

	legacy := `{"prod_7_1700000000": {"id": "prod_7_1700000000", "name": "Old", "price": 1, "seller": "0x1", "status": "active", "images": []}}`
	require.NoError(t, writeFile(filepath.Join(cfg.Storage.DataDir, "products.json"), legacy))

	s, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/products/prod_7_1700000000", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/products/register", map[string]any{"name": "New", "price": 1, "seller": "0x1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decodeBody[map[string]any](t, rec)["id"].(string), "prod_8_"))
}

func TestNew_MalformedLegacyIDFails(t *testing.T) {
	gw := httptest.NewServer(&fakeGateway{files: make(map[string][]byte)})
	defer gw.Close()
	cfg := testConfig(t, gw.URL)

	require.NoError(t, writeFile(filepath.Join(cfg.Storage.DataDir, "products.json"), `{"widget": {"name": "x"}}`))

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = freePort(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	addr := "http://" + s.cfg.Addr() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
