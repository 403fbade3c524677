package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwolfbr/indflow/internal/model"
	"github.com/cwolfbr/indflow/internal/pipeline"
)

// stubRunner stands in for the pipeline. It records every request, flags
// overlapping runs and signals completion on done.
type stubRunner struct {
	mu      sync.Mutex
	reqs    []pipeline.Request
	result  *model.RunResult
	delay   time.Duration
	running atomic.Int32
	overlap atomic.Bool
	done    chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		result: &model.RunResult{Success: true, Bulletin: 4231, TotalNotices: 12},
		done:   make(chan struct{}, 8),
	}
}

func (s *stubRunner) Run(_ context.Context, req pipeline.Request) *model.RunResult {
	if s.running.Add(1) > 1 {
		s.overlap.Store(true)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	s.running.Add(-1)
	s.done <- struct{}{}
	return s.result
}

func (s *stubRunner) requests() []pipeline.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Request(nil), s.reqs...)
}

func (s *stubRunner) waitRuns(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for background run %d of %d", i+1, n)
		}
	}
}

// stubStats serves canned store statistics.
type stubStats struct {
	stats *model.StoreStats
	err   error
	days  atomic.Int32
}

func (s *stubStats) Stats(_ context.Context, days int) (*model.StoreStats, error) {
	s.days.Store(int32(days))
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

func newTestHandler(stub *stubRunner) http.Handler {
	return newServer(context.Background(), stub, &stubStats{stats: &model.StoreStats{}}).routes()
}

func TestServer_Health(t *testing.T) {
	h := newTestHandler(newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, version, body["version"])
}

func TestServer_Stats(t *testing.T) {
	st := &stubStats{stats: &model.StoreStats{Total: 9, High: 2, Medium: 3, Low: 4, Participate: 1, Watch: 2}}
	h := newServer(context.Background(), newStubRunner(), st).routes()

	req := httptest.NewRequest(http.MethodGet, "/stats?days=7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(7), st.days.Load())

	var stats model.StoreStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 9, stats.Total)
	assert.Equal(t, 2, stats.High)
}

func TestServer_StatsRejectsBadWindow(t *testing.T) {
	h := newTestHandler(newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/stats?days=sete", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "non-negative")
}

func TestServer_ProcessRunsSynchronously(t *testing.T) {
	stub := newStubRunner()
	h := newTestHandler(stub)

	payload := `{"boletim_number": 4231, "email_subject": "ConLicitação - Boletim [4231]", "send_whatsapp": false}`
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 4231, result.Bulletin)
	assert.Equal(t, 12, result.TotalNotices)

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 4231, reqs[0].BulletinNumber)
	assert.True(t, reqs[0].DownloadDocs, "download toggle defaults on when absent")
	assert.False(t, reqs[0].Notify)
}

func TestServer_ProcessEmptyBodyMeansNewest(t *testing.T) {
	stub := newStubRunner()
	h := newTestHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/process", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Zero(t, reqs[0].BulletinNumber)
	assert.True(t, reqs[0].DownloadDocs)
	assert.True(t, reqs[0].Notify)
}

func TestServer_ProcessRejectsBadJSON(t *testing.T) {
	stub := newStubRunner()
	h := newTestHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader([]byte(`{"boletim_number": `)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
	assert.Empty(t, stub.requests())
}

func TestServer_ProcessAsyncAcknowledges(t *testing.T) {
	stub := newStubRunner()
	h := newTestHandler(stub)

	payload := `{"email_subject": "ConLicitação - Boletim [555] disponível", "email_html": "<a href=\"https://consulteonline.conlicitacao.com.br/boletim_web/555\">Acessar o Boletim</a>"}`
	req := httptest.NewRequest(http.MethodPost, "/process-async", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "accepted", ack.Status)
	assert.Equal(t, "Processamento do boletim 555 iniciado em background", ack.Message)
	require.NotNil(t, ack.BulletinNumber)
	assert.Equal(t, 555, *ack.BulletinNumber)

	stub.waitRuns(t, 1)
	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].EmailSubject, "[555]")
	assert.Contains(t, reqs[0].EmailHTML, "boletim_web/555")
}

func TestServer_ProcessAsyncUnknownBulletin(t *testing.T) {
	stub := newStubRunner()
	h := newTestHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/process-async", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "Processamento do boletim novo iniciado em background", ack.Message)
	assert.Nil(t, ack.BulletinNumber)

	stub.waitRuns(t, 1)
}

func TestServer_RunsNeverOverlap(t *testing.T) {
	stub := newStubRunner()
	stub.delay = 30 * time.Millisecond
	h := newTestHandler(stub)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/process-async", strings.NewReader(`{"boletim_number": 100}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	stub.waitRuns(t, 3)
	assert.False(t, stub.overlap.Load(), "portal runs must be serialized")
	assert.Len(t, stub.requests(), 3)
}

func TestTriggerPayload_TogglesDefaultOn(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantDownload bool
		wantNotify   bool
	}{
		{"absent means on", `{"boletim_number": 1}`, true, true},
		{"explicit false respected", `{"download_editais": false, "send_whatsapp": false}`, false, false},
		{"explicit true respected", `{"download_editais": true, "send_whatsapp": true}`, true, true},
		{"mixed", `{"download_editais": false}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload triggerPayload
			require.NoError(t, json.Unmarshal([]byte(tt.body), &payload))
			req := payload.request()
			assert.Equal(t, tt.wantDownload, req.DownloadDocs)
			assert.Equal(t, tt.wantNotify, req.Notify)
		})
	}
}
