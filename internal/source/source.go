// Package source defines the upstream services a notification is built
// from and the errors they share.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/steam-trading-notice/internal/fetch"
)

// SourceType identifies an upstream integration.
type SourceType string

const (
	SourceTypeBrowserless SourceType = "browserless"
	SourceTypeDataDump    SourceType = "datadump"
)

// AuthError indicates that an upstream rejected our credentials.
// It is returned by source clients when a 401 or 403 response is received.
type AuthError struct {
	SourceType SourceType
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): status %d", e.SourceType, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Classify wraps credential rejections in an AuthError and annotates the
// rest with the source type.
func Classify(st SourceType, op string, err error) error {
	switch code := fetch.StatusCode(err); code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{SourceType: st, StatusCode: code, Err: err}
	}
	return fmt.Errorf("%s %s: %w", st, op, err)
}

// Screenshotter renders the monitored page to an image.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Dump is one decompressed market data file.
type Dump struct {
	Name string
	Text string
}

// DumpSource returns the most recent data dump.
type DumpSource interface {
	Latest(ctx context.Context) (*Dump, error)
}
