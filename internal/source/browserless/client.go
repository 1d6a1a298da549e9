// Package browserless renders the monitored page through a hosted
// headless-browser screenshot API.
package browserless

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/nhle/steam-trading-notice/internal/fetch"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/source"
)

// Client takes full-page JPEG screenshots of one target URL.
type Client struct {
	cfg      model.BrowserlessConfig
	fetcher  *fetch.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewClient creates a screenshot client. Screenshots above maxBytes are
// rejected.
func NewClient(
	cfg model.BrowserlessConfig,
	fetcher *fetch.Client,
	maxBytes int64,
	logger *slog.Logger,
) *Client {
	return &Client{
		cfg:      cfg,
		fetcher:  fetcher,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Type returns the source type identifier.
func (c *Client) Type() source.SourceType {
	return source.SourceTypeBrowserless
}

// Screenshot renders the target page once the wait selector has
// disappeared and returns the raw JPEG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, source.Classify(c.Type(), "screenshot", err)
	}

	req := fetch.Request{
		URL:  endpoint,
		JSON: newScreenshotRequest(c.cfg.TargetURL, c.cfg.WaitSelector),
	}

	c.logger.Info("requesting screenshot", "target", c.cfg.TargetURL)

	img, err := c.fetcher.Bytes(ctx, req, c.maxBytes)
	if err != nil {
		return nil, source.Classify(c.Type(), "screenshot", err)
	}

	c.logger.Info("screenshot received", "bytes", len(img))

	return img, nil
}

// endpoint appends the API token as the token query parameter.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
