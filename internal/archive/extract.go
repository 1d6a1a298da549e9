// Package archive extracts the single text entry of a small, already
// size-bounded zip archive into memory.
//
// The producer of these archives emits exactly one entry. Only entry 0 is
// ever read; any further entries are ignored without inspection.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptyArchive is returned when the archive holds no entries.
	ErrEmptyArchive = errors.New("archive has no entries")

	// ErrUncompressedSizeExceeded is returned when the entry's declared or
	// actual uncompressed size is above the ceiling.
	ErrUncompressedSizeExceeded = errors.New("archive entry uncompressed size exceeded")

	// ErrSizeMismatch is returned when the entry expands past its declared
	// size but stays within the ceiling.
	ErrSizeMismatch = errors.New("archive entry larger than its declared size")

	// ErrNotText is returned when the entry is not valid UTF-8.
	ErrNotText = errors.New("archive entry is not UTF-8 text")
)

// Extractor decompresses archive entries off the caller's goroutine.
// Concurrent extractions are capped so CPU-bound inflation cannot starve
// network work.
type Extractor struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	// openEntry is swapped in tests to observe decompression attempts.
	openEntry func(f *zip.File) (io.ReadCloser, error)
}

// NewExtractor returns an Extractor allowing GOMAXPROCS concurrent
// extractions.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		logger: logger,
		openEntry: func(f *zip.File) (io.ReadCloser, error) {
			return f.Open()
		},
	}
}

type result struct {
	text string
	err  error
}

// Extract returns the text of entry 0 of the zip archive in data, failing
// if it would expand beyond maxUncompressed bytes. It blocks until the
// extraction finishes or ctx is done; an abandoned extraction finishes in
// the background and its result is dropped.
func (e *Extractor) Extract(
	ctx context.Context,
	data []byte,
	maxUncompressed int64,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for extraction slot: %w", err)
	}

	done := make(chan result, 1)
	go func() {
		defer e.sem.Release(1)
		text, err := e.extract(data, maxUncompressed)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Extractor) extract(data []byte, maxUncompressed int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening zip archive: %w", err)
	}

	if len(zr.File) == 0 {
		return "", ErrEmptyArchive
	}
	if len(zr.File) > 1 {
		e.logger.Debug("archive holds extra entries, reading the first only",
			"entries", len(zr.File))
	}

	entry := zr.File[0]
	declared := entry.UncompressedSize64

	e.logger.Debug("archive entry",
		"name", entry.Name,
		"compressed", entry.CompressedSize64,
		"declared_uncompressed", declared,
		"limit", maxUncompressed,
	)

	if maxUncompressed < 0 || declared > uint64(maxUncompressed) {
		return "", fmt.Errorf("%w: entry %q declares %d bytes, limit %d",
			ErrUncompressedSizeExceeded, entry.Name, declared, maxUncompressed)
	}

	rc, err := e.openEntry(entry)
	if err != nil {
		return "", fmt.Errorf("opening archive entry %q: %w", entry.Name, err)
	}
	defer rc.Close()

	buf := bytes.NewBuffer(make([]byte, 0, int(declared)))
	n, err := io.Copy(buf, io.LimitReader(rc, maxUncompressed+1))
	if err != nil {
		// The zip reader refuses to yield more than the declared size.
		if errors.Is(err, zip.ErrFormat) {
			return "", e.mismatch(entry, maxUncompressed)
		}
		return "", fmt.Errorf("decompressing archive entry %q: %w", entry.Name, err)
	}
	if n > maxUncompressed {
		return "", fmt.Errorf("%w: entry %q expanded past %d bytes",
			ErrUncompressedSizeExceeded, entry.Name, maxUncompressed)
	}

	if !utf8.Valid(buf.Bytes()) {
		return "", fmt.Errorf("%w: entry %q", ErrNotText, entry.Name)
	}

	return buf.String(), nil
}

// mismatch classifies an entry that expanded past its declared size by
// measuring it against the ceiling.
func (e *Extractor) mismatch(entry *zip.File, maxUncompressed int64) error {
	actual, err := measure(entry, maxUncompressed)
	if err != nil {
		return fmt.Errorf("%w: entry %q declares %d bytes: %w",
			ErrSizeMismatch, entry.Name, entry.UncompressedSize64, err)
	}

	e.logger.Debug("archive entry larger than declared",
		"name", entry.Name,
		"declared_uncompressed", entry.UncompressedSize64,
		"measured", actual,
		"limit", maxUncompressed,
	)

	if actual > maxUncompressed {
		return fmt.Errorf("%w: entry %q declares %d bytes but expands past %d",
			ErrUncompressedSizeExceeded, entry.Name, entry.UncompressedSize64, maxUncompressed)
	}
	return fmt.Errorf("%w: entry %q declares %d bytes, holds %d",
		ErrSizeMismatch, entry.Name, entry.UncompressedSize64, actual)
}

// measure decompresses the raw entry without the declared-size check and
// stops after limit+1 bytes.
func measure(entry *zip.File, limit int64) (int64, error) {
	raw, err := entry.OpenRaw()
	if err != nil {
		return 0, err
	}

	var r io.Reader
	switch entry.Method {
	case zip.Store:
		r = raw
	case zip.Deflate:
		fr := flate.NewReader(raw)
		defer fr.Close()
		r = fr
	default:
		return 0, fmt.Errorf("unsupported compression method %d", entry.Method)
	}

	return io.Copy(io.Discard, io.LimitReader(r, limit+1))
}
