package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// chunkSize is the read buffer used for each pull from the body.
const chunkSize = 32 * 1024

// ReadBounded reads r to EOF, refusing to hold more than limit bytes.
//
// declared is the size the peer announced (Content-Length); values <= 0
// mean unknown. A declared size above limit fails before r is touched.
// Otherwise the body is consumed one chunk at a time and the read aborts
// as soon as the running total passes limit. On any error the partial
// buffer is dropped and nil is returned. r is never retried.
func ReadBounded(
	ctx context.Context,
	r io.Reader,
	declared int64,
	limit int64,
) ([]byte, error) {
	if declared > 0 && declared > limit {
		return nil, &SizeError{
			Kind:     ErrDeclaredSizeExceeded,
			Declared: declared,
			Limit:    limit,
		}
	}

	var body []byte
	if declared > 0 {
		body = make([]byte, 0, declared)
	}

	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			total := int64(len(body)) + int64(n)
			if total > limit {
				return nil, &SizeError{
					Kind:     ErrActualSizeExceeded,
					Declared: declared,
					Observed: total,
					Limit:    limit,
				}
			}
			body = append(body, chunk[:n]...)
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
	}

	if body == nil {
		body = []byte{}
	}

	return body, nil
}
