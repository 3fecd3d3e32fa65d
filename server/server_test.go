package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/artifacts"
	"github.com/schemabounce/waterfall-bridge/config"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
	"github.com/schemabounce/waterfall-bridge/internal/waterfalltest"
	"github.com/schemabounce/waterfall-bridge/metrics"
	"github.com/schemabounce/waterfall-bridge/rpc"
	"github.com/schemabounce/waterfall-bridge/service"
	"github.com/schemabounce/waterfall-bridge/types"
	"github.com/schemabounce/waterfall-bridge/waterfall"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	svc    *waterfalltest.Service
	store  *artifacts.MemoryStore
	router http.Handler
}

func newHarness(t *testing.T, collections map[string]types.Collection) *harness {
	t.Helper()
	svc := waterfalltest.NewService(t, waterfalltest.Fixture{Collections: collections})
	store := artifacts.NewMemoryStore()

	reg := prometheus.NewRegistry()
	clientCfg := waterfall.DefaultClientConfig()
	clientCfg.Timeout = 2 * time.Second
	b := service.New(service.Options{
		Client:  waterfall.NewClient(clientCfg),
		Store:   store,
		Metrics: metrics.New(reg),
	})

	cfg := config.Default()
	cfg.Server.MaxUploadBytes = 1 << 20
	return &harness{
		svc:    svc,
		store:  store,
		router: New(Options{Bridge: b, Config: cfg, Gatherer: reg}).Handler(),
	}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) exportRequest(params url.Values) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "/export?"+params.Encode(), nil)
	return req
}

func multipartImport(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := h.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestVersionAndConfig(t *testing.T) {
	h := newHarness(t, nil)

	req, _ := http.NewRequest(http.MethodGet, "/version", nil)
	w := h.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w), "version")

	req, _ = http.NewRequest(http.MethodGet, "/config", nil)
	w = h.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "30s", body["waterfall"].(map[string]any)["timeout"])
}

func TestExport_Download(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {{"id": "t1", "name": "one"}}})

	req := h.exportRequest(url.Values{"url": {h.svc.CollectionURL("tasks")}, "type": {"csv"}})
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-tok"})
	w := h.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="tasks_export.csv"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "_original_id,id,name")

	requests := h.svc.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "cookie-tok", requests[0].Cookie)
	assert.Equal(t, "Bearer cookie-tok", requests[0].Authorization)
}

func TestExport_BooleanParameters(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {
		{"id": "p", "parent_id": nil},
		{"id": "c", "parent_id": "p"},
	}})

	w := h.do(h.exportRequest(url.Values{"url": {h.svc.CollectionURL("tasks")}, "tree": {"TRUE"}}))
	require.Equal(t, http.StatusOK, w.Code)
	var roots []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roots))
	assert.Len(t, roots, 1)

	w = h.do(h.exportRequest(url.Values{"url": {h.svc.CollectionURL("tasks")}, "tree": {"1"}}))
	require.Equal(t, http.StatusOK, w.Code)
	var flat []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flat))
	assert.Len(t, flat, 2, "only the literal true enables tree mode")
}

func TestExport_Destination(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {{"id": "t1"}}})

	w := h.do(h.exportRequest(url.Values{
		"url":         {h.svc.CollectionURL("tasks")},
		"destination": {"exports/tasks.json"},
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "exports/tasks.json", body["artifact"].(map[string]any)["key"])

	stored, err := h.store.Get(context.Background(), "exports/tasks.json")
	require.NoError(t, err)
	assert.Contains(t, string(stored.Data), `"t1"`)
}

func TestExport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		params  func(h *harness) url.Values
		setup   func(h *harness)
		status  int
		message string
	}{
		{
			name:    "missing url",
			params:  func(*harness) url.Values { return url.Values{} },
			status:  http.StatusBadRequest,
			message: "invalid export input: missing required parameter: url",
		},
		{
			name: "unknown type",
			params: func(h *harness) url.Values {
				return url.Values{"url": {h.svc.CollectionURL("tasks")}, "type": {"xml"}}
			},
			status: http.StatusBadRequest,
		},
		{
			name: "invalid lookup config",
			params: func(h *harness) url.Values {
				return url.Values{"url": {h.svc.CollectionURL("tasks")}, "lookup_config": {"{"}}
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "upstream error",
			params: func(h *harness) url.Values { return url.Values{"url": {h.svc.CollectionURL("tasks")}} },
			setup: func(h *harness) {
				h.svc.Respond(http.MethodGet, "/tasks", waterfalltest.Response{Status: http.StatusInternalServerError})
			},
			status:  http.StatusBadGateway,
			message: "target service returned error: 500",
		},
		{
			name:   "not an array",
			params: func(h *harness) url.Values { return url.Values{"url": {h.svc.CollectionURL("tasks")}} },
			setup: func(h *harness) {
				h.svc.Respond(http.MethodGet, "/tasks", waterfalltest.Response{Status: http.StatusOK, Body: `"x"`})
			},
			status:  http.StatusBadRequest,
			message: "target URL must return a JSON array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string]types.Collection{"tasks": {}})
			if tt.setup != nil {
				tt.setup(h)
			}
			w := h.do(h.exportRequest(tt.params(h)))
			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeBody(t, w)["message"])
			}
		})
	}
}

func TestImport_Upload(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {}})

	req := multipartImport(t, map[string]string{"url": h.svc.CollectionURL("tasks")}, "tasks_export.json",
		[]byte(`[{"id": "a", "name": "alpha"}, {"id": "b", "name": "beta"}]`))
	req.Header.Set("Authorization", "Bearer hdr-tok")
	w := h.do(req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	report := decodeBody(t, w)["import_report"].(map[string]any)
	assert.Equal(t, float64(2), report["success"])
	assert.Equal(t, map[string]any{"a": "tasks-1", "b": "tasks-2"}, report["id_mapping"])

	for _, r := range h.svc.Requests() {
		assert.Equal(t, "Bearer hdr-tok", r.Authorization)
	}
}

func TestImport_PartialSuccess(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {}})
	h.svc.RejectCreate = func(_ string, body types.Record) *waterfalltest.Response {
		if body["name"] == "bad" {
			return &waterfalltest.Response{Status: http.StatusUnprocessableEntity, Body: "rejected"}
		}
		return nil
	}

	req := multipartImport(t, map[string]string{"url": h.svc.CollectionURL("tasks")}, "t.json",
		[]byte(`[{"id": "a", "name": "good"}, {"id": "b", "name": "bad"}]`))
	w := h.do(req)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	report := decodeBody(t, w)["import_report"].(map[string]any)
	errs := report["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].(map[string]any)["original_id"])
}

func TestImport_FromArtifactSource(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {}})
	_, err := h.store.Put(context.Background(), "in/tasks.json", []byte(`[{"id": "a", "name": "alpha"}]`), "application/json")
	require.NoError(t, err)

	q := url.Values{"url": {h.svc.CollectionURL("tasks")}, "source": {"in/tasks.json"}}
	req, _ := http.NewRequest(http.MethodPost, "/import?"+q.Encode(), nil)
	w := h.do(req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, h.svc.Creates("tasks"), 1)
}

func TestImport_Errors(t *testing.T) {
	const missingRef = `[{"id": "t1", "project_id": "7f3e2d1c-0b9a-4876-a5b4-c3d2e1f0a9b8",
		"_references": {"project_id": {"resource_type": "projects", "original_id": "7f3e2d1c-0b9a-4876-a5b4-c3d2e1f0a9b8", "lookup_field": "name", "lookup_value": "Apollo"}}}]`

	tests := []struct {
		name       string
		fields     func(h *harness) map[string]string
		filename   string
		content    string
		status     int
		resolution bool
	}{
		{
			name:   "no file",
			fields: func(h *harness) map[string]string { return map[string]string{"url": h.svc.CollectionURL("tasks")} },
			status: http.StatusBadRequest,
		},
		{
			name:     "missing url",
			fields:   func(*harness) map[string]string { return map[string]string{} },
			filename: "a.json", content: "[]",
			status: http.StatusBadRequest,
		},
		{
			name: "bad policy",
			fields: func(h *harness) map[string]string {
				return map[string]string{"url": h.svc.CollectionURL("tasks"), "on_missing": "maybe"}
			},
			filename: "a.json", content: "[]",
			status: http.StatusBadRequest,
		},
		{
			name:     "cycle",
			fields:   func(h *harness) map[string]string { return map[string]string{"url": h.svc.CollectionURL("tasks")} },
			filename: "a.json", content: `[{"id": "a", "parent_id": "b"}, {"id": "b", "parent_id": "a"}]`,
			status: http.StatusBadRequest,
		},
		{
			name: "missing reference with fail policy",
			fields: func(h *harness) map[string]string {
				return map[string]string{"url": h.svc.CollectionURL("tasks"), "on_missing": "fail"}
			},
			filename: "a.json", content: missingRef,
			status: http.StatusBadRequest, resolution: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string]types.Collection{"tasks": {}, "projects": {}})
			w := h.do(multipartImport(t, tt.fields(h), tt.filename, []byte(tt.content)))

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			body := decodeBody(t, w)
			assert.NotEmpty(t, body["message"])
			if tt.resolution {
				assert.Equal(t, float64(1), body["resolution_report"].(map[string]any)["missing"])
			}
			assert.Empty(t, h.svc.Creates("tasks"))
		})
	}
}

func TestImport_UploadTooLarge(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {}})
	big := bytes.Repeat([]byte("x"), 2<<20)

	w := h.do(multipartImport(t, map[string]string{"url": h.svc.CollectionURL("tasks")}, "a.json", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, map[string]types.Collection{"tasks": {{"id": "t1"}}})
	h.do(h.exportRequest(url.Values{"url": {h.svc.CollectionURL("tasks")}}))

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := h.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `waterfall_bridge_export_runs_total{format="json",outcome="success"} 1`)
}

// stubBridge answers every call with a fixed error, as a plugin-hosted
// bridge does.
type stubBridge struct{ err error }

func (s stubBridge) Export(context.Context, exporter.Options) (*exporter.Result, error) {
	return nil, s.err
}

func (s stubBridge) Import(context.Context, importer.Options, []byte) (*importer.Result, error) {
	return nil, s.err
}

func (s stubBridge) ImportArtifact(context.Context, importer.Options, string) (*importer.Result, error) {
	return nil, s.err
}

func TestPluginErrorsKeepTheirStatus(t *testing.T) {
	router := New(Options{Bridge: stubBridge{err: &rpc.RPCError{
		Message: "timeout connecting to http://svc/api/tasks",
		Code:    rpc.CodeFetch,
		Status:  http.StatusGatewayTimeout,
	}}}).Handler()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/export?url=http://svc/api/tasks", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "timeout connecting to")
}
