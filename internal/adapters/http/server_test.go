package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/observability"
)

type fakeEngine struct {
	report  *workflows.ReportResult
	chat    *workflows.ChatResult
	history []domain.Snapshot
	threads []string

	gotReport workflows.ReportRequest
	gotChat   workflows.ChatRequest
}

func (f *fakeEngine) Report(_ context.Context, req workflows.ReportRequest) (*workflows.ReportResult, error) {
	f.gotReport = req
	return f.report, nil
}

func (f *fakeEngine) Chat(_ context.Context, req workflows.ChatRequest) (*workflows.ChatResult, error) {
	f.gotChat = req
	return f.chat, nil
}

func (f *fakeEngine) History(_ context.Context, threadID string) ([]domain.Snapshot, error) {
	if len(f.history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return f.history, nil
}

func (f *fakeEngine) Threads(context.Context) ([]string, error) {
	return f.threads, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := NewHandler(&fakeEngine{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReportEndpoint(t *testing.T) {
	engine := &fakeEngine{report: &workflows.ReportResult{
		Report:   "# Relatório",
		ThreadID: "r-1",
	}}
	handler := NewHandler(engine, nil)

	rec := postJSON(t, handler, "/api/report", map[string]any{"days": 7, "state": "RJ"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, engine.gotReport.Days)
	assert.Equal(t, "RJ", engine.gotReport.Region)

	var out workflows.ReportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "# Relatório", out.Report)
	assert.Equal(t, "r-1", out.ThreadID)
}

func TestChatEndpoint(t *testing.T) {
	engine := &fakeEngine{chat: &workflows.ChatResult{
		Response: "resposta",
		ThreadID: "t-1",
	}}
	handler := NewHandler(engine, nil)

	rec := postJSON(t, handler, "/api/chat", map[string]any{"message": "oi", "thread_id": "t-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "oi", engine.gotChat.Message)
	assert.Equal(t, "t-1", engine.gotChat.ThreadID)
}

func TestChatRequiresMessage(t *testing.T) {
	handler := NewHandler(&fakeEngine{}, nil)

	rec := postJSON(t, handler, "/api/chat", map[string]any{"thread_id": "t-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportRejectsMalformedBody(t *testing.T) {
	handler := NewHandler(&fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/report", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	engine := &fakeEngine{history: []domain.Snapshot{
		{ThreadID: "t-1", Seq: 1, State: json.RawMessage(`{"days":30}`)},
	}}
	handler := NewHandler(engine, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads/t-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		ThreadID  string            `json:"thread_id"`
		Snapshots []domain.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "t-1", out.ThreadID)
	require.Len(t, out.Snapshots, 1)
	assert.Equal(t, 1, out.Snapshots[0].Seq)
}

func TestHistoryUnknownThread(t *testing.T) {
	handler := NewHandler(&fakeEngine{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThreadsEndpoint(t *testing.T) {
	engine := &fakeEngine{threads: []string{"a", "b"}}
	handler := NewHandler(engine, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threads":["a","b"]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.New(reg)
	handler := NewHandler(&fakeEngine{}, reg)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
