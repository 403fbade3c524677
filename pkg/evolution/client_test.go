package evolution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message/sendText/indflow", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p struct {
			Number string `json:"number"`
			Text   string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "5541999998888", p.Number)
		assert.Equal(t, "📋 *Relatório IndFlow — Boletim 1234*", p.Text)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"key":{"id":"BAE5F5A93"},"status":"PENDING"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendText(context.Background(), "5541999998888", "📋 *Relatório IndFlow — Boletim 1234*")

	require.NoError(t, err)
}

func TestSendText_NoRecipient(t *testing.T) {
	t.Parallel()

	client := NewClient("http://localhost:1", "test-key", "indflow")
	err := client.SendText(context.Background(), "", "mensagem")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipient number")
}

func TestSendText_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"instance not connected"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendText(context.Background(), "5541999998888", "mensagem")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSendText_RetryOn429(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"PENDING"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendText(context.Background(), "5541999998888", "mensagem")

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendText_RetryExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`service unavailable`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendText(context.Background(), "5541999998888", "mensagem")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendText_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendText(ctx, "5541999998888", "mensagem")

	require.Error(t, err)
}

func TestSendDocument_Success(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "edital.pdf")
	content := []byte("%PDF-1.4 conteudo do edital")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message/sendMedia/indflow", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		var p map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "5541999998888", p["number"])
		assert.Equal(t, "document", p["mediatype"])
		assert.Equal(t, "document", p["mediaType"])
		assert.Equal(t, "application/pdf", p["mimetype"])
		assert.Equal(t, "edital.pdf", p["fileName"])
		assert.Equal(t, "📎 Edital PE 12/2026 — SANEPAR", p["caption"])

		decoded, err := base64.StdEncoding.DecodeString(p["media"].(string))
		require.NoError(t, err)
		assert.Equal(t, content, decoded)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"PENDING"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendDocument(context.Background(), "5541999998888", path, "📎 Edital PE 12/2026 — SANEPAR")

	require.NoError(t, err)
}

func TestSendDocument_DefaultCaption(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "edital_30123.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "Documento: edital_30123.pdf", p["caption"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"PENDING"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "indflow")
	err := client.SendDocument(context.Background(), "5541999998888", path, "")

	require.NoError(t, err)
}

func TestSendDocument_FileMissing(t *testing.T) {
	t.Parallel()

	client := NewClient("http://localhost:1", "test-key", "indflow")
	err := client.SendDocument(context.Background(), "5541999998888", filepath.Join(t.TempDir(), "nope.pdf"), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}

func TestSendDocument_NoRecipient(t *testing.T) {
	t.Parallel()

	client := NewClient("http://localhost:1", "test-key", "indflow")
	err := client.SendDocument(context.Background(), "", "/tmp/edital.pdf", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipient number")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient("http://evolution:8080/", "my-key", "indflow")
	hc := c.(*httpClient)

	assert.Equal(t, "http://evolution:8080", hc.baseURL)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "indflow", hc.instance)
	require.NotNil(t, hc.http)
	assert.Equal(t, 60*time.Second, hc.http.Timeout)
	assert.NotNil(t, hc.limiter)
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	c := NewClient("http://evolution:8080", "my-key", "indflow", WithTimeout(5*time.Second))
	hc := c.(*httpClient)

	assert.Equal(t, 5*time.Second, hc.http.Timeout)
}

func TestWithRateLimit_Disabled(t *testing.T) {
	t.Parallel()

	c := NewClient("http://evolution:8080", "my-key", "indflow", WithRateLimit(0))
	hc := c.(*httpClient)

	assert.Nil(t, hc.limiter)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	custom := &http.Client{}
	c := NewClient("http://evolution:8080", "my-key", "indflow", WithHTTPClient(custom))
	hc := c.(*httpClient)

	assert.Equal(t, custom, hc.http)
}

func TestRetryableStatusCode(t *testing.T) {
	assert.True(t, retryableStatusCode(429))
	assert.True(t, retryableStatusCode(500))
	assert.True(t, retryableStatusCode(502))
	assert.True(t, retryableStatusCode(503))
	assert.False(t, retryableStatusCode(200))
	assert.False(t, retryableStatusCode(201))
	assert.False(t, retryableStatusCode(400))
	assert.False(t, retryableStatusCode(404))
}
