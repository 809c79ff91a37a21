package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrestor94/pliegos-ai/internal/analysis"
	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/doctree"
	"github.com/andrestor94/pliegos-ai/internal/history"
	"github.com/andrestor94/pliegos-ai/internal/llm"
	"github.com/andrestor94/pliegos-ai/internal/parser"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
	"github.com/andrestor94/pliegos-ai/internal/report"
)

const testKey = "secret-key"

type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, f parser.SourceFile) doctree.Document {
	return doctree.Document{Name: f.Name, Pages: []doctree.Page{
		{Number: 1, Text: string(f.Data), Origin: doctree.OriginNative},
	}}
}

type echoAnalyzer struct{}

func (echoAnalyzer) Analyze(_ context.Context, in analysis.Input) analysis.Result {
	return analysis.Result{
		Report:   "## General information\n- Annexes: " + strings.Repeat("x", len(in.Annexes)),
		States:   []analysis.State{analysis.StateSinglePass, analysis.StateRepair, analysis.StateDone},
		Strategy: analysis.StateSinglePass,
	}
}

type testEnv struct {
	srv   *Server
	store *history.Store
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rd, err := report.NewRenderer(report.RenderConfig{})
	require.NoError(t, err)

	w := pipeline.NewWorker(textExtractor{}, echoAnalyzer{}, rd, store, filepath.Join(dir, "reports"), log)
	d := pipeline.NewDispatcher(w, 1, 4, time.Hour, log)
	d.Start(context.Background())
	t.Cleanup(d.Stop)

	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.MaxFilesPerRequest = 2
	cfg.MaxUploadBytes = 1 << 20

	return testEnv{
		srv:   NewServer(d, store, llm.NewStats(time.Hour), log, cfg),
		store: store,
	}
}

func (e testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func waitForStatus(t *testing.T, e testEnv, jobID string, want pipeline.JobStatus) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze/"+jobID+"/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var snap pipeline.JobSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		if snap.Status == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %q", jobID, snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, e.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("X-API-Key", testKey)
	req.Header.Set("Authorization", "Basic ignored")
	assert.Equal(t, http.StatusOK, e.do(t, req).Code)
}

func TestAnalyze_EndToEnd(t *testing.T) {
	e := newTestEnv(t)

	req := uploadRequest(t,
		map[string]string{"output_name": "Licitación 7", "title": "Licitación Pública 7/2025"},
		map[string]string{"pliego.txt": "Garantía de oferta: 1%"})
	rec := e.do(t, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, "/api/analyze/"+accepted.JobID+"/status", accepted.PollURL)

	snap := waitForStatus(t, e, accepted.JobID, pipeline.StatusCompleted)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "SINGLE_PASS", snap.Result.Strategy)
	assert.Equal(t, "Licitacion-7.pdf", filepath.Base(snap.Result.PDFPath))

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze/"+accepted.JobID+"/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "## General information\n- Annexes: x", rec.Body.String())

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/analyze/"+accepted.JobID+"/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Reports []history.Record `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "Licitación 7", list.Reports[0].Name)
	assert.Empty(t, list.Reports[0].Report)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/reports/"+snap.Result.ReportID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "## General information\n- Annexes: x", got.Report)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/reports/"+snap.Result.ReportID+"?format=pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestAnalyze_MultipleFiles(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, uploadRequest(t, nil, map[string]string{
		"pliego.txt": "condiciones",
		"anexo.txt":  "especificaciones",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	snap := waitForStatus(t, e, accepted.JobID, pipeline.StatusCompleted)
	assert.Equal(t, 2, snap.Result.Annexes)
	assert.Equal(t, 2, snap.Progress.FilesExtracted)
}

func TestAnalyze_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, uploadRequest(t, map[string]string{"title": "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one file")

	rec = e.do(t, uploadRequest(t, nil, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many files")

	rec = e.do(t, uploadRequest(t, nil, map[string]string{"empty.pdf": ""}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, e.do(t, req).Code)
}

func TestJobEndpoints_NotFound(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{
		"/api/analyze/missing/status",
		"/api/analyze/missing/report",
		"/api/analyze/missing/pdf",
		"/api/reports/missing",
	} {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestListReports_BadLimit(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/reports?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/reports?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":[]}`, rec.Body.String())
}

func TestLLMStats(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "total")
	assert.Contains(t, body, "models")
	assert.Equal(t, float64(0), body["queue_depth"])
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pliego.pdf", "pliego.pdf"},
		{"C:\\Users\\ana\\pliego.pdf", "pliego.pdf"},
		{"../../etc/passwd", "passwd"},
		{"a..b.pdf", "a_b.pdf"},
		{"", "unnamed"},
		{"/", "unnamed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
