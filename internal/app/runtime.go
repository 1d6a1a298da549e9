package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nhle/steam-trading-notice/internal/fetch"
	"github.com/nhle/steam-trading-notice/internal/transport"
)

var (
	// ErrAlreadyInitialized is returned when a process singleton is set up
	// a second time.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotInitialized is returned when a process singleton is used
	// before it was set up.
	ErrNotInitialized = errors.New("not initialized")
)

// Negotiator establishes the SMTP session. *transport.Negotiator
// satisfies it.
type Negotiator interface {
	Negotiate(ctx context.Context, cfg transport.Config) (*transport.Session, error)
}

// Runtime holds the process-wide HTTP client and SMTP session. Each is
// set up once and shared by every job.
type Runtime struct {
	logger *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
	session    *transport.Session
	shutdown   bool
}

// NewRuntime creates an empty Runtime.
func NewRuntime(logger *slog.Logger) *Runtime {
	return &Runtime{logger: logger}
}

// InitHTTPClient creates the shared HTTP client.
func (r *Runtime) InitHTTPClient(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.httpClient != nil {
		return fmt.Errorf("http client: %w", ErrAlreadyInitialized)
	}
	r.httpClient = fetch.NewHTTPClient(timeout)
	return nil
}

// HTTPClient returns the shared HTTP client.
func (r *Runtime) HTTPClient() (*http.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.httpClient == nil {
		return nil, fmt.Errorf("http client: %w", ErrNotInitialized)
	}
	return r.httpClient, nil
}

// ConnectMailer negotiates the SMTP session. A failed negotiation is
// logged and the whole sequence retried exactly once; the second failure
// is returned.
func (r *Runtime) ConnectMailer(ctx context.Context, n Negotiator, cfg transport.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return fmt.Errorf("smtp session: %w", ErrAlreadyInitialized)
	}

	session, err := n.Negotiate(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		r.logger.Warn("smtp setup failed, retrying once", "host", cfg.Host, "err", err)
		session, err = n.Negotiate(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connecting smtp after retry: %w", err)
		}
	}

	r.session = session
	return nil
}

// Session returns the negotiated SMTP session.
func (r *Runtime) Session() (*transport.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, fmt.Errorf("smtp session: %w", ErrNotInitialized)
	}
	return r.session, nil
}

// Shutdown closes the SMTP session. Later calls do nothing.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil
	}
	r.shutdown = true

	if r.httpClient != nil {
		r.httpClient.CloseIdleConnections()
	}
	if r.session == nil {
		return nil
	}
	return r.session.Close()
}
