// Package evolution provides a client for the Evolution API WhatsApp gateway.
package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Evolution API messaging operations.
type Client interface {
	// SendText delivers a plain text message to a WhatsApp number.
	SendText(ctx context.Context, number, text string) error
	// SendDocument delivers a local file as a document attachment with a
	// caption.
	SendDocument(ctx context.Context, number, filePath, caption string) error
}

// Option configures the Evolution client.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit overrides the default message pacing (1 msg/s). Zero or
// negative disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an Evolution API client bound to one instance. Sends
// are paced to 1 msg/s by default so a long report does not trip WhatsApp
// spam heuristics.
func NewClient(baseURL, apiKey, instance string, opts ...Option) Client {
	c := &httpClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaPayload struct {
	Number    string `json:"number"`
	Media     string `json:"media"`
	MediaType string `json:"mediatype"`
	// Older Evolution builds read the camelCase key.
	MediaTypeCompat string `json:"mediaType"`
	MimeType        string `json:"mimetype"`
	FileName        string `json:"fileName"`
	Caption         string `json:"caption"`
}

func (c *httpClient) SendText(ctx context.Context, number, text string) error {
	if number == "" {
		return eris.New("evolution: no recipient number")
	}

	payload := textPayload{Number: number, Text: text}
	body, status, err := c.post(ctx, "/message/sendText/"+c.instance, payload)
	if err != nil {
		return eris.Wrap(err, "evolution: send text")
	}
	if status < 200 || status >= 300 {
		return eris.Errorf("evolution: send text status %d: %s", status, string(body))
	}
	return nil
}

func (c *httpClient) SendDocument(ctx context.Context, number, filePath, caption string) error {
	if number == "" {
		return eris.New("evolution: no recipient number")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return eris.Wrapf(err, "evolution: read document %s", filePath)
	}

	name := filepath.Base(filePath)
	if caption == "" {
		caption = "Documento: " + name
	}

	payload := mediaPayload{
		Number:          number,
		Media:           base64.StdEncoding.EncodeToString(data),
		MediaType:       "document",
		MediaTypeCompat: "document",
		MimeType:        "application/pdf",
		FileName:        name,
		Caption:         caption,
	}
	body, status, err := c.post(ctx, "/message/sendMedia/"+c.instance, payload)
	if err != nil {
		return eris.Wrapf(err, "evolution: send document %s", name)
	}
	if status < 200 || status >= 300 {
		return eris.Errorf("evolution: send document %s status %d: %s", name, status, string(body))
	}
	return nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a
// retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// post sends a JSON payload with exponential backoff retries on transient
// failures (429, 500, 502, 503). Returns the response body and status code
// on success, or the last error after exhausting retries.
func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, eris.Wrap(err, "marshal payload")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "rate limit")
		}
	}

	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
		if err != nil {
			return nil, 0, eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}
