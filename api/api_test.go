package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/agent"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/progress"
	"github.com/lordpython/videoforge/ratelimit"
	"github.com/lordpython/videoforge/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := session.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	govCfg := governor.DefaultConfig()
	govCfg.TotalCPUCores = 8
	govCfg.TotalMemoryMB = 16384
	govCfg.TotalDiskMB = 100000
	gov := governor.New(govCfg, nil)
	prog := progress.New(store)
	limiter := ratelimit.New(map[string]ratelimit.ServiceConfig{
		"research": {Capacity: 10, RefillRate: 10, PerMinute: 1000, PerHour: 10000},
	}, nil)
	t.Cleanup(limiter.Close)

	cfg := processor.DefaultConfig()
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	proc := processor.New(cfg, store, gov, prog, agent.NewRegistry(), nil)
	proc.Start()
	t.Cleanup(func() { proc.Stop(5 * time.Second) })

	return NewServer(proc, store, limiter, gov, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsOK(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	a.Equal(http.StatusOK, rec.Code)
}

func TestSubmitValidatesBody(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions", SubmitRequest{Prompt: "", DurationSec: 1})
	a.Equal(http.StatusBadRequest, rec.Code)
}

func TestSubmitAndGetLifecycle(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions", SubmitRequest{
		Prompt: "a lake at dawn", DurationSec: 30, Quality: "medium",
	})
	a.Equal(http.StatusAccepted, rec.Code)

	var submitResp map[string]string
	a.NoError(json.Unmarshal(rec.Body.Bytes(), &submitResp))
	requestID := submitResp["request_id"]
	a.NotEmpty(requestID)

	getRec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions/"+requestID, nil)
	a.Equal(http.StatusOK, getRec.Code)
}

func TestGetMalformedIDReturns400(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	a.Equal(http.StatusBadRequest, rec.Code)
}

func TestGetWellFormedUnknownIDReturns404(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions/00000000-0000-0000-0000-000000000000", nil)
	a.Equal(http.StatusNotFound, rec.Code)
}

func TestListReturnsSubmittedSessions(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions", SubmitRequest{Prompt: "p", DurationSec: 30, User: "alice"})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions?user=alice", nil)
	a.Equal(http.StatusOK, rec.Code)

	var sessions []map[string]any
	a.NoError(json.Unmarshal(rec.Body.Bytes(), &sessions))
	a.Len(sessions, 1)
}

func TestCancelUnknownIDReturns404(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions/00000000-0000-0000-0000-000000000000/cancel", nil)
	a.Equal(http.StatusNotFound, rec.Code)
}

func TestMetricsAndResourcesEndpoints(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	a.Equal(http.StatusOK, doJSON(t, s.Handler(), http.MethodGet, "/v1/metrics", nil).Code)
	a.Equal(http.StatusOK, doJSON(t, s.Handler(), http.MethodGet, "/v1/resources", nil).Code)
}

func TestRateLimitStatusUnknownServiceReturns404(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/rate-limits/nope", nil)
	a.Equal(http.StatusNotFound, rec.Code)
}

func TestRateLimitStatusKnownService(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/rate-limits/research", nil)
	a.Equal(http.StatusOK, rec.Code)
}

func TestPrometheusMetricsEndpointServesExposition(t *testing.T) {
	a := assert.New(t)

	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics", nil)
	a.Equal(http.StatusOK, rec.Code)
	a.Contains(rec.Body.String(), "videoforge_")
}
