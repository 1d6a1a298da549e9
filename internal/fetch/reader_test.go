package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out one chunk per Read and counts the calls.
type chunkReader struct {
	chunks [][]byte
	reads  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func chunks(sizes ...int) [][]byte {
	out := make([][]byte, 0, len(sizes))
	for i, size := range sizes {
		out = append(out, bytes.Repeat([]byte{byte('a' + i)}, size))
	}
	return out
}

func TestReadBounded_DeclaredOverLimitReadsNothing(t *testing.T) {
	for _, tc := range []struct {
		declared, limit int64
	}{
		{2, 1},
		{1_000_001, 1_000_000},
		{2_000_000, 1_000_000},
	} {
		r := &chunkReader{chunks: chunks(10)}

		body, err := ReadBounded(context.Background(), r, tc.declared, tc.limit)

		assert.Nil(t, body)
		assert.ErrorIs(t, err, ErrDeclaredSizeExceeded)
		assert.Equal(t, 0, r.reads, "declared %d limit %d", tc.declared, tc.limit)
	}
}

func TestReadBounded_StopsAtOverflowingChunk(t *testing.T) {
	// Cumulative sizes 40, 80, 120: the third chunk crosses the limit.
	r := &chunkReader{chunks: chunks(40, 40, 40, 40, 40)}

	body, err := ReadBounded(context.Background(), r, 0, 100)

	assert.Nil(t, body, "partial data must not leak")
	assert.ErrorIs(t, err, ErrActualSizeExceeded)
	assert.Equal(t, 3, r.reads)

	var sizeErr *SizeError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, int64(120), sizeErr.Observed)
	assert.Equal(t, int64(100), sizeErr.Limit)
}

func TestReadBounded_LyingDeclaredSize(t *testing.T) {
	// The peer claims 50 bytes and sends 150.
	r := &chunkReader{chunks: chunks(50, 50, 50)}

	body, err := ReadBounded(context.Background(), r, 50, 100)

	assert.Nil(t, body)
	assert.ErrorIs(t, err, ErrActualSizeExceeded)
	assert.Equal(t, 3, r.reads)
}

func TestReadBounded_ExactlyAtLimit(t *testing.T) {
	r := &chunkReader{chunks: chunks(60, 40)}

	body, err := ReadBounded(context.Background(), r, 100, 100)

	require.NoError(t, err)
	assert.Len(t, body, 100)
	assert.Equal(t, bytes.Repeat([]byte("a"), 60), body[:60])
	assert.Equal(t, bytes.Repeat([]byte("b"), 40), body[60:])
}

func TestReadBounded_UnknownSize(t *testing.T) {
	r := &chunkReader{chunks: chunks(10, 20, 30)}

	body, err := ReadBounded(context.Background(), r, -1, 1000)

	require.NoError(t, err)
	assert.Len(t, body, 60)
}

func TestReadBounded_EmptyBody(t *testing.T) {
	body, err := ReadBounded(context.Background(), &chunkReader{}, 0, 10)

	require.NoError(t, err)
	assert.NotNil(t, body)
	assert.Empty(t, body)
}

func TestReadBounded_ReaderError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(bytes.NewReader([]byte("partial")), iotest.ErrReader(boom))

	body, err := ReadBounded(context.Background(), r, 0, 100)

	assert.Nil(t, body)
	assert.ErrorIs(t, err, boom)
}

func TestReadBounded_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &chunkReader{chunks: chunks(10)}

	body, err := ReadBounded(ctx, r, 0, 100)

	assert.Nil(t, body)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.reads)
}
