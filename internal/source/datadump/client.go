// Package datadump downloads the newest zipped market data dump.
package datadump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nhle/steam-trading-notice/internal/fetch"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/source"
)

var (
	// ErrListFailed is returned when the listing reports success=false.
	ErrListFailed = errors.New("dump listing reported failure")

	// ErrNoDumps is returned when the listing is empty.
	ErrNoDumps = errors.New("dump listing is empty")
)

// Limits bounds the listing and archive downloads, in bytes.
type Limits struct {
	MaxListBytes         int64
	MaxArchiveBytes      int64
	MaxUncompressedBytes int64
}

// Client reads the dump listing and fetches its newest entry.
type Client struct {
	cfg     model.DataDumpConfig
	fetcher *fetch.Client
	limits  Limits
	logger  *slog.Logger
}

// NewClient creates a dump client.
func NewClient(
	cfg model.DataDumpConfig,
	fetcher *fetch.Client,
	limits Limits,
	logger *slog.Logger,
) *Client {
	return &Client{
		cfg:     cfg,
		fetcher: fetcher,
		limits:  limits,
		logger:  logger,
	}
}

// Type returns the source type identifier.
func (c *Client) Type() source.SourceType {
	return source.SourceTypeDataDump
}

// List returns the dump file names, oldest first.
func (c *Client) List(ctx context.Context) ([]string, error) {
	body, err := c.fetcher.Bytes(ctx, fetch.Request{URL: c.cfg.ListURL}, c.limits.MaxListBytes)
	if err != nil {
		return nil, source.Classify(c.Type(), "list", err)
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decoding dump listing: %w", err)
	}
	if !list.Success {
		return nil, ErrListFailed
	}
	if len(list.Files) == 0 {
		return nil, ErrNoDumps
	}

	c.logger.Debug("dump listing", "files", len(list.Files))

	return list.Files, nil
}

// Latest downloads and decompresses the last file of the listing.
func (c *Client) Latest(ctx context.Context) (*source.Dump, error) {
	files, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	name := files[len(files)-1]

	c.logger.Info("fetching data dump", "file", name)

	text, err := c.fetcher.ArchiveText(
		ctx,
		fetch.Request{URL: c.fileURL(name)},
		c.limits.MaxArchiveBytes,
		c.limits.MaxUncompressedBytes,
	)
	if err != nil {
		return nil, source.Classify(c.Type(), "download "+name, err)
	}

	return &source.Dump{Name: name, Text: text}, nil
}

func (c *Client) fileURL(name string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(name, "/")
}
