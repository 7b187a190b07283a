// Package transport is the single seam through which all remote calls pass.
// It centralizes authentication headers, per-class timeouts, error
// translation, and URL composition relative to a configured base, and
// normalizes the backend's variant payload shapes at the boundary.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// File is an in-memory file handed to the coordinator by a consumer.
type File struct {
	Name string
	MIME string
	Data []byte
}

// ContentType returns the declared MIME, defaulting to octet-stream.
func (f File) ContentType() string {
	if f.MIME == "" {
		return "application/octet-stream"
	}
	return f.MIME
}

// Client performs typed HTTP calls against the backend.
type Client struct {
	baseURL  string
	agentURL string

	// One http.Client per timeout class.
	std     *http.Client // default requests (30s)
	upload  *http.Client // uploads and processing (3m)
	storage *http.Client // direct storage PUT, per attempt (30s)
	health  *http.Client // health probes (5s)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the per-class request timeouts.
func WithTimeouts(std, upload, storage, health time.Duration) Option {
	return func(c *Client) {
		c.std.Timeout = std
		c.upload.Timeout = upload
		c.storage.Timeout = storage
		c.health.Timeout = health
	}
}

// WithAgentURL points configuration synthesis at a dedicated AI endpoint
// instead of {base}/agent/run.
func WithAgentURL(url string) Option {
	return func(c *Client) { c.agentURL = url }
}

// New creates a Client for the given backend origin.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		std:     &http.Client{Timeout: 30 * time.Second},
		upload:  &http.Client{Timeout: 3 * time.Minute},
		storage: &http.Client{Timeout: 30 * time.Second},
		health:  &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.agentURL == "" {
		c.agentURL = c.baseURL + "/agent/run"
	}
	return c
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) url(path string) string { return c.baseURL + path }

// doJSON issues a request with an optional JSON body and decodes a JSON
// response into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(hc, req, path, out)
}

// doMultipart issues a multipart POST. fields are plain form values; the
// file part is named "file".
func (c *Client) doMultipart(ctx context.Context, hc *http.Client, path, token string, f File, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return fmt.Errorf("%s: create form file: %w", path, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return fmt.Errorf("%s: write form file: %w", path, err)
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return fmt.Errorf("%s: write form field %s: %w", path, name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: close multipart: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), &buf)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", path, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(hc, req, path, out)
}

// jsonRequest builds a JSON POST/PUT against an absolute URL (used for
// endpoints outside the configured base, like a dedicated AI agent).
func jsonRequest(ctx context.Context, method, fullURL string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request, endpoint string, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return classify(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp, endpoint)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// parseAPIError builds an APIError with a best-effort {"detail": ...} parse.
func parseAPIError(resp *http.Response, endpoint string) error {
	apiErr := &APIError{Status: resp.StatusCode, Endpoint: endpoint}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(payload.Detail)
		}
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(body))
	return apiErr
}
