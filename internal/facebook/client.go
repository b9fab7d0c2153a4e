// Package facebook implements the Graph API calls needed to publish videos
// to a Facebook page: the chunked resumable upload protocol and the
// long-lived token exchange.
package facebook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultGraphURL      = "https://graph.facebook.com"
	defaultGraphVideoURL = "https://graph-video.facebook.com"
	defaultAPIVersion    = "v19.0"
)

// Doer issues HTTP requests. *http.Client satisfies it; callers that want
// retries can inject an httputil.RetryClient instead.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Facebook Graph API. It holds no per-upload state, so a
// single Client may serve concurrent uploads.
type Client struct {
	httpClient    Doer
	graphURL      string
	graphVideoURL string
	version       string
}

// Options configures a Client. Zero values fall back to the production Graph
// API hosts and version.
type Options struct {
	HTTPClient    Doer
	GraphURL      string
	GraphVideoURL string
	Version       string
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.GraphURL == "" {
		opts.GraphURL = defaultGraphURL
	}
	if opts.GraphVideoURL == "" {
		opts.GraphVideoURL = defaultGraphVideoURL
	}
	if opts.Version == "" {
		opts.Version = defaultAPIVersion
	}

	return &Client{
		httpClient:    opts.HTTPClient,
		graphURL:      opts.GraphURL,
		graphVideoURL: opts.GraphVideoURL,
		version:       opts.Version,
	}
}

func (c *Client) videosURL(pageID string) string {
	return fmt.Sprintf("%s/%s/%s/videos", c.graphVideoURL, c.version, pageID)
}

func (c *Client) oauthURL() string {
	return fmt.Sprintf("%s/%s/oauth/access_token", c.graphURL, c.version)
}

// graphError is the error object the Graph API embeds in response bodies.
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *graphError) text() string {
	if e.Message == "" {
		return "unknown error"
	}
	return e.Message
}

// offset decodes Graph API byte offsets, which arrive as JSON strings or
// numbers depending on the endpoint.
type offset int64

func (o *offset) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*o = 0
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", s, err)
	}
	*o = offset(n)
	return nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) postChunk(ctx context.Context, rawURL string, fields map[string]string, fileField string, chunk []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	part, err := writer.CreateFormFile(fileField, "chunk")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, fmt.Errorf("failed to write chunk: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// do sends the request and returns the body regardless of HTTP status; the
// Graph API signals failure through an error object in the body, not the
// status code.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
