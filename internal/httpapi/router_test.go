package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/rcc"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/storage"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/telemetry"
)

type fakeStatus struct {
	catalogsErr error
}

func (fakeStatus) Health() model.Health {
	return model.Health{Status: "healthy", Timestamp: "2026-01-01T00:00:00Z", Service: telemetry.ServiceName}
}

func (fakeStatus) Status(context.Context) model.StatusSnapshot {
	return model.StatusSnapshot{
		Services: model.Services{
			RCCRemote: model.PackageServerState{Host: "rccremote", Port: "4653"},
			Nginx:     model.ProxyState{Host: "nginx"},
		},
		RCC:       model.RCCStatus{Version: rcc.UnknownVersion},
		Timestamp: "2026-01-01T00:00:00Z",
	}
}

func (f fakeStatus) Catalogs(context.Context) (model.CatalogList, error) {
	if f.catalogsErr != nil {
		return model.CatalogList{}, f.catalogsErr
	}
	return model.CatalogList{Catalogs: []string{"c1"}, Count: 1, RawOutput: "Holotree catalogs:\nc1\n"}, nil
}

type fakeOps struct {
	result   model.OperationResult
	imported []string
}

func (f *fakeOps) RebuildCatalogs(context.Context) model.OperationResult { return f.result }
func (f *fakeOps) ImportZip(_ context.Context, filename string) model.OperationResult {
	f.imported = append(f.imported, filename)
	return f.result
}

type recordingMetrics struct {
	routes []string
}

func (m *recordingMetrics) ObserveHTTPRequest(_, route string, _ int, _ time.Duration) {
	m.routes = append(m.routes, route)
}

type testEnv struct {
	handler http.Handler
	ops     *fakeOps
	metrics *recordingMetrics
	robots  string
	zips    string
}

func newTestEnv(t *testing.T, status fakeStatus) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		ops:     &fakeOps{result: model.OperationResult{Success: true, Message: "ok"}},
		metrics: &recordingMetrics{},
		robots:  filepath.Join(root, "robots"),
		zips:    filepath.Join(root, "zips"),
	}
	require.NoError(t, os.MkdirAll(env.robots, 0o755))
	require.NoError(t, os.MkdirAll(env.zips, 0o755))

	static := filepath.Join(root, "static")
	require.NoError(t, os.MkdirAll(static, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>dashboard</html>"), 0o644))

	store := storage.NewStore(env.robots, env.zips, nil)
	env.handler = NewRouter(Deps{
		Status:         status,
		Ops:            env.ops,
		Robots:         store,
		Zips:           store,
		Metrics:        env.metrics,
		MetricsHandler: telemetry.NewMetrics(nil).Handler(),
		StaticDir:      static,
		MaxUploadMB:    1,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestRoutesReturnJSON(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})
	for _, path := range []string{"/api/health", "/api/status", "/api/catalogs", "/api/robots", "/api/hololib-zips"} {
		rr := env.do(t, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s expected 200 got %d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s expected application/json got %s", path, ct)
		}
		var out map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s invalid json: %v", path, err)
		}
	}
}

func TestStatusShape(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	out := decode(t, env.do(t, http.MethodGet, "/api/status", nil, ""))

	services := out["services"].(map[string]any)
	assert.Equal(t, "4653", services["rccremote"].(map[string]any)["port"])
	assert.Equal(t, false, services["nginx"].(map[string]any)["running"])
	assert.Equal(t, "unknown", out["rcc"].(map[string]any)["version"])
	assert.Contains(t, out["statistics"], "hololib_zips")
	assert.Contains(t, out["paths"], "hololib_zip")

	stats := out["statistics"].(map[string]any)
	assert.Equal(t, float64(0), stats["holotree_spaces"])
	assert.Equal(t, float64(0), stats["active_blueprints"])
	rccInfo := out["rcc"].(map[string]any)
	for _, key := range []string{"catalog_total_bytes", "newest_catalog_age_days", "most_used_space",
		"settings_profile", "settings_version", "ssl_verify", "diagnostics_hosts_count", "rcc_index_url"} {
		assert.Contains(t, rccInfo, key)
	}
	assert.Nil(t, rccInfo["ssl_verify"])
}

func TestCatalogsFailure(t *testing.T) {
	env := newTestEnv(t, fakeStatus{catalogsErr: &rcc.CommandError{
		Op:     "holotree catalogs",
		Result: rcc.Result{ExitCode: 127, Stderr: "rcc: not found"},
	}})

	rr := env.do(t, http.MethodGet, "/api/catalogs", nil, "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, "Failed to retrieve catalogs", out["error"])
	assert.Equal(t, "rcc: not found", out["details"])
}

func TestRobotLifecycle(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	rr := env.do(t, http.MethodPost, "/api/robots", bytes.NewBufferString(`{"name":"demo bot"}`), "application/json")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "demo_bot", decode(t, rr)["name"])

	rr = env.do(t, http.MethodPost, "/api/robots", bytes.NewBufferString(`{"name":"demo bot"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/robots", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	out := decode(t, env.do(t, http.MethodGet, "/api/robots", nil, ""))
	assert.EqualValues(t, 1, out["count"])

	body, ct := multipartBody(t, "files", map[string]string{"tasks.robot": "*** Tasks ***", "run.exe": "MZ"})
	rr = env.do(t, http.MethodPost, "/api/robots/demo_bot/upload", body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out = decode(t, rr)
	assert.Equal(t, []any{"tasks.robot"}, out["uploaded"])
	assert.Equal(t, []any{"run.exe: File type not allowed"}, out["errors"])

	rr = env.do(t, http.MethodGet, "/api/robots/demo_bot/files/tasks.robot", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*** Tasks ***", decode(t, rr)["content"])

	rr = env.do(t, http.MethodPut, "/api/robots/demo_bot/files",
		bytes.NewBufferString(`{"robot_yaml":"tasks:\n  Go: {}\n","conda_yaml":"dependencies: []\n"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	out = decode(t, env.do(t, http.MethodGet, "/api/robots/demo_bot", nil, ""))
	assert.Equal(t, []any{"Go"}, out["tasks"])

	rr = env.do(t, http.MethodDelete, "/api/robots/demo_bot", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/robots/demo_bot", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Robot not found", decode(t, rr)["error"])
}

func TestRobotsListMissingRoot(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})
	require.NoError(t, os.RemoveAll(env.robots))

	rr := env.do(t, http.MethodGet, "/api/robots", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Robots path does not exist", decode(t, rr)["error"])
}

func TestUploadWithoutFiles(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	body, ct := multipartBody(t, "other", map[string]string{"a.txt": "x"})
	rr := env.do(t, http.MethodPost, "/api/robots/r/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/robots/r/upload", bytes.NewBufferString("plain"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	body, ct := multipartBody(t, "file", map[string]string{"big.zip": strings.Repeat("x", 2<<20)})
	rr := env.do(t, http.MethodPost, "/api/hololib-zips/upload", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHololibZipLifecycle(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	body, ct := multipartBody(t, "file", map[string]string{"notes.txt": "x"})
	rr := env.do(t, http.MethodPost, "/api/hololib-zips/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Only ZIP files are allowed", decode(t, rr)["error"])

	body, ct = multipartBody(t, "file", map[string]string{"env.zip": "PK"})
	rr = env.do(t, http.MethodPost, "/api/hololib-zips/upload", body, ct)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "env.zip", decode(t, rr)["filename"])

	out := decode(t, env.do(t, http.MethodGet, "/api/hololib-zips", nil, ""))
	assert.EqualValues(t, 1, out["count"])

	rr = env.do(t, http.MethodPost, "/api/hololib-zips/env.zip/import", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"env.zip"}, env.ops.imported)

	rr = env.do(t, http.MethodPost, "/api/hololib-zips/ghost.zip/import", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/hololib-zips/env.zip", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/hololib-zips/env.zip", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRebuildStatusCodes(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	rr := env.do(t, http.MethodPost, "/api/catalogs/rebuild", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["success"])

	env.ops.result = model.OperationResult{TimedOut: true, Error: "Operation took too long"}
	rr = env.do(t, http.MethodPost, "/api/catalogs/rebuild", nil, "")
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Equal(t, true, decode(t, rr)["timed_out"])

	env.ops.result = model.OperationResult{Error: "boom"}
	rr = env.do(t, http.MethodPost, "/api/catalogs/rebuild", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStaticMetricsAndUnknownAPI(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	rr := env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dashboard")

	rr = env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", decode(t, rr)["error"])
}

func TestMiddlewareHeadersAndMetrics(t *testing.T) {
	env := newTestEnv(t, fakeStatus{})

	rr := env.do(t, http.MethodOptions, "/api/status", nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(telemetry.RequestIDHeader, "fixed-id")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, "fixed-id", rr.Header().Get(telemetry.RequestIDHeader))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = env.do(t, http.MethodGet, "/api/status", nil, "")
	assert.NotEmpty(t, rr.Header().Get(telemetry.RequestIDHeader))

	assert.Equal(t, []string{"GET /api/health", "GET /api/status"}, env.metrics.routes)
}
