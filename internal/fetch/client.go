// Package fetch performs single outbound HTTP calls whose response bodies
// are held to explicit size limits, optionally unpacking a zipped body.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nhle/steam-trading-notice/internal/archive"
	"github.com/nhle/steam-trading-notice/internal/logs"
	"github.com/nhle/steam-trading-notice/internal/metrics"
)

// DefaultTimeout bounds a whole request, body included.
const DefaultTimeout = 30 * time.Second

// Request describes one outbound call.
type Request struct {
	// Method defaults to GET, or POST when JSON is set.
	Method string
	URL    string

	// JSON, when non-nil, is encoded as the request body.
	JSON any

	Header http.Header
}

// Client issues bounded fetches. It adds no retries; callers decide.
type Client struct {
	httpClient *http.Client
	extractor  *archive.Extractor
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewHTTPClient returns the shared *http.Client used for every fetch.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewClient wraps httpClient. m may be nil.
func NewClient(
	httpClient *http.Client,
	extractor *archive.Extractor,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Client {
	return &Client{
		httpClient: httpClient,
		extractor:  extractor,
		logger:     logger,
		metrics:    m,
	}
}

// Bytes performs req and returns the raw body, at most limit bytes long.
func (c *Client) Bytes(
	ctx context.Context,
	req Request,
	limit int64,
) ([]byte, error) {
	body, err := c.fetch(ctx, req, limit)
	c.metrics.Fetch("bytes", outcome(err), len(body))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ArchiveText performs req, bounds the zipped body by limit, and returns
// the text of its first entry, bounded by maxUncompressed.
func (c *Client) ArchiveText(
	ctx context.Context,
	req Request,
	limit int64,
	maxUncompressed int64,
) (string, error) {
	body, err := c.fetch(ctx, req, limit)
	if err != nil {
		c.metrics.Fetch("archive", outcome(err), 0)
		return "", err
	}

	text, err := c.extractor.Extract(ctx, body, maxUncompressed)
	c.metrics.Fetch("archive", outcome(err), len(text))
	if err != nil {
		c.logger.Warn("archive extraction failed",
			"url", redact(req.URL),
			"compressed_bytes", len(body),
			"limit", maxUncompressed,
			"err", err,
		)
		return "", err
	}

	c.logger.Debug("archive extracted",
		"url", redact(req.URL),
		"compressed_bytes", len(body),
		"text_bytes", len(text),
	)

	return text, nil
}

// fetch runs the status check and the bounded read, in that order.
func (c *Client) fetch(
	ctx context.Context,
	req Request,
	limit int64,
) ([]byte, error) {
	httpReq, err := newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	where := redact(req.URL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w",
			httpReq.Method, where, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("upstream rejected request",
			"method", httpReq.Method,
			"url", where,
			"status", resp.StatusCode,
		)
		return nil, &UpstreamError{
			Method:     httpReq.Method,
			URL:        where,
			StatusCode: resp.StatusCode,
		}
	}

	c.logger.Debug("response declared size",
		"url", where,
		"declared", resp.ContentLength,
		"limit", limit,
	)

	traced := &tracedReader{ctx: ctx, r: resp.Body, logger: c.logger, url: where}
	body, err := ReadBounded(ctx, traced, resp.ContentLength, limit)
	if err != nil {
		c.logger.Warn("response body rejected", "url", where, "err", err)
		return nil, err
	}

	c.logger.Debug("response read", "url", where, "bytes", len(body))

	return body, nil
}

// tracedReader logs the size of every chunk read from the body.
type tracedReader struct {
	ctx    context.Context
	r      io.Reader
	logger *slog.Logger
	url    string
	total  int64
}

func (t *tracedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.total += int64(n)
		logs.Trace(t.ctx, t.logger, "response chunk", "url", t.url, "bytes", n, "total", t.total)
	}
	return n, err
}

func newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	var bodyReader io.Reader
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		if method == "" {
			method = http.MethodPost
		}
	}
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.JSON != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// redact strips the query and userinfo, which may carry tokens.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeclaredSizeExceeded):
		return "declared_size_exceeded"
	case errors.Is(err, ErrActualSizeExceeded):
		return "actual_size_exceeded"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, archive.ErrEmptyArchive):
		return "empty_archive"
	case errors.Is(err, archive.ErrUncompressedSizeExceeded):
		return "uncompressed_size_exceeded"
	case errors.Is(err, archive.ErrSizeMismatch):
		return "size_mismatch"
	default:
		return "error"
	}
}
