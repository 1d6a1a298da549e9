package archive

import (
	"bytes"
	"context"
	"hash/crc32"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/steam-trading-notice/internal/logs"
)

const mb = 1024 * 1024

type entry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// buildLyingZip writes body deflated but records declared as its
// uncompressed size.
func buildLyingZip(t *testing.T, body []byte, declared uint64) []byte {
	t.Helper()

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.BestCompression)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "dump.csv",
		Method:             zip.Deflate,
		CRC32:              crc32.ChecksumIEEE(body),
		CompressedSize64:   uint64(compressed.Len()),
		UncompressedSize64: declared,
	})
	require.NoError(t, err)
	_, err = w.Write(compressed.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func countingExtractor() (*Extractor, *atomic.Int32) {
	e := NewExtractor(logs.Discard())
	var opens atomic.Int32
	open := e.openEntry
	e.openEntry = func(f *zip.File) (io.ReadCloser, error) {
		opens.Add(1)
		return open(f)
	}
	return e, &opens
}

func TestExtract_SingleEntry(t *testing.T) {
	e, opens := countingExtractor()
	data := buildZip(t, entry{"dump.csv", "name,price\nAK-47,12.5\n"})

	text, err := e.Extract(context.Background(), data, 1024)
	require.NoError(t, err)
	assert.Equal(t, "name,price\nAK-47,12.5\n", text)
	assert.Equal(t, int32(1), opens.Load())
}

func TestExtract_EmptyArchive(t *testing.T) {
	e, opens := countingExtractor()
	data := buildZip(t)

	_, err := e.Extract(context.Background(), data, 1024)
	assert.ErrorIs(t, err, ErrEmptyArchive)
	assert.Equal(t, int32(0), opens.Load())
}

func TestExtract_NotAnArchive(t *testing.T) {
	e, _ := countingExtractor()

	_, err := e.Extract(context.Background(), []byte("definitely not a zip"), 1024)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyArchive)
}

func TestExtract_DeclaredSizeOverCeilingIsNotDecompressed(t *testing.T) {
	e, opens := countingExtractor()
	data := buildLyingZip(t, []byte("tiny"), 40*mb)

	_, err := e.Extract(context.Background(), data, 30*mb)
	assert.ErrorIs(t, err, ErrUncompressedSizeExceeded)
	assert.Equal(t, int32(0), opens.Load(), "entry must not be opened")
}

func TestExtract_ActualSizeOverDeclaredIsBounded(t *testing.T) {
	e, opens := countingExtractor()
	body := bytes.Repeat([]byte("a"), 10_000)
	data := buildLyingZip(t, body, 10)

	_, err := e.Extract(context.Background(), data, 100)
	assert.ErrorIs(t, err, ErrUncompressedSizeExceeded)
	assert.Equal(t, int32(1), opens.Load())
}

func TestExtract_ActualSizeOverDeclaredWithinCeiling(t *testing.T) {
	e, _ := countingExtractor()
	body := bytes.Repeat([]byte("b"), 50)
	data := buildLyingZip(t, body, 10)

	_, err := e.Extract(context.Background(), data, 100)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.NotErrorIs(t, err, ErrUncompressedSizeExceeded)
	assert.ErrorContains(t, err, "holds 50")
}

func TestExtract_FiveMegabytesRoundTrip(t *testing.T) {
	e, _ := countingExtractor()

	var sb strings.Builder
	for sb.Len() < 5*mb {
		sb.WriteString("AK-47 | Redline (Field-Tested),buff,12.50,uuyp,11.90\n")
	}
	source := sb.String()
	data := buildZip(t, entry{"dump.csv", source})

	text, err := e.Extract(context.Background(), data, 30*mb)
	require.NoError(t, err)
	assert.Equal(t, source, text)
}

func TestExtract_OnlyFirstEntryIsRead(t *testing.T) {
	e, opens := countingExtractor()
	data := buildZip(t,
		entry{"first.csv", "first"},
		entry{"second.csv", strings.Repeat("x", 4096)},
	)

	// The second entry would exceed the ceiling; it is never looked at.
	text, err := e.Extract(context.Background(), data, 100)
	require.NoError(t, err)
	assert.Equal(t, "first", text)
	assert.Equal(t, int32(1), opens.Load())
}

func TestExtract_RejectsBinaryEntry(t *testing.T) {
	e, _ := countingExtractor()
	data := buildZip(t, entry{"blob.bin", string([]byte{0xff, 0xfe, 0xfd})})

	_, err := e.Extract(context.Background(), data, 1024)
	assert.ErrorIs(t, err, ErrNotText)
}

func TestExtract_CancelledContext(t *testing.T) {
	e, _ := countingExtractor()
	data := buildZip(t, entry{"dump.csv", "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, data, 1024)
	assert.ErrorIs(t, err, context.Canceled)
}
