package datadump

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/steam-trading-notice/internal/archive"
	"github.com/nhle/steam-trading-notice/internal/fetch"
	"github.com/nhle/steam-trading-notice/internal/logs"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/source"
)

func zipped(t *testing.T, name, text string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestClient(t *testing.T, mux *http.ServeMux, limits Limits) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := logs.Discard()
	fetcher := fetch.NewClient(srv.Client(), archive.NewExtractor(logger), logger, nil)
	cfg := model.DataDumpConfig{
		ListURL: srv.URL + "/api/dumps",
		BaseURL: srv.URL + "/dumps/",
	}
	return NewClient(cfg, fetcher, limits, logger)
}

var defaultLimits = Limits{
	MaxListBytes:         1 << 20,
	MaxArchiveBytes:      10 << 20,
	MaxUncompressedBytes: 30 << 20,
}

func TestLatest(t *testing.T) {
	csv := "name,platform,price\nAK-47 | Redline,buff,12.50\n"
	var requested []string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":["2026-10-14.zip","2026-10-15.zip"],"success":true}`))
	})
	mux.HandleFunc("/dumps/", func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		_, _ = w.Write(zipped(t, "dump.csv", csv))
	})
	c := newTestClient(t, mux, defaultLimits)

	dump, err := c.Latest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2026-10-15.zip", dump.Name)
	assert.Equal(t, csv, dump.Text)
	assert.Equal(t, []string{"/dumps/2026-10-15.zip"}, requested)
}

func TestLatest_ListingFailed(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"success false", `{"files":["a.zip"],"success":false}`, ErrListFailed},
		{"no files", `{"files":[],"success":true}`, ErrNoDumps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, mux, defaultLimits)

			dump, err := c.Latest(context.Background())
			assert.Nil(t, dump)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLatest_BadListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	c := newTestClient(t, mux, defaultLimits)

	_, err := c.Latest(context.Background())
	assert.ErrorContains(t, err, "decoding dump listing")
}

func TestLatest_ListingTooLarge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
		body := `{"files":["` + strings.Repeat("a", 2048) + `"],"success":true}`
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write([]byte(body))
	})
	limits := defaultLimits
	limits.MaxListBytes = 1024
	c := newTestClient(t, mux, limits)

	_, err := c.Latest(context.Background())
	assert.ErrorIs(t, err, fetch.ErrDeclaredSizeExceeded)
}

func TestLatest_ArchiveOverCeiling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":["big.zip"],"success":true}`))
	})
	mux.HandleFunc("/dumps/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(zipped(t, "big.csv", strings.Repeat("x", 4096)))
	})
	limits := defaultLimits
	limits.MaxUncompressedBytes = 1024
	c := newTestClient(t, mux, limits)

	_, err := c.Latest(context.Background())
	assert.ErrorIs(t, err, archive.ErrUncompressedSizeExceeded)
}

func TestLatest_Forbidden(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dumps", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c := newTestClient(t, mux, defaultLimits)

	_, err := c.Latest(context.Background())
	assert.True(t, source.IsAuthError(err))
}
