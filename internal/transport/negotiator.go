// Package transport acquires an authenticated SMTP session by trying the
// encrypted transport variants in a fixed order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nhle/steam-trading-notice/internal/metrics"
)

// Negotiator runs a Probe over Variants and keeps the first success.
// It holds no state between calls and never retries on its own.
type Negotiator struct {
	probe   Probe
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNegotiator creates a Negotiator. m may be nil.
func NewNegotiator(probe Probe, logger *slog.Logger, m *metrics.Metrics) *Negotiator {
	return &Negotiator{
		probe:   probe,
		logger:  logger,
		metrics: m,
	}
}

// Negotiate validates cfg and returns the session of the first variant
// that the server confirms. Incomplete configuration fails with
// ErrConfigInvalid before any connection is attempted.
func (n *Negotiator) Negotiate(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var failures []error
	for _, v := range Variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		port := v.Port(cfg.Port)
		log := n.logger.With("host", cfg.Host, "port", port, "variant", v.String())
		log.Info("trying SMTP transport")

		session, err := n.probe.Probe(ctx, cfg, v, port)
		if err == nil && session == nil {
			err = errors.New("probe returned no session")
		}
		if err == nil {
			n.metrics.Negotiation(v.String(), "ok")
			log.Info("SMTP transport established")
			return session, nil
		}

		if errors.Is(err, ErrNotConfirmed) {
			n.metrics.Negotiation(v.String(), "not_confirmed")
			log.Warn("SMTP server did not confirm the connection", "err", err)
		} else {
			n.metrics.Negotiation(v.String(), "error")
			log.Warn("SMTP transport failed", "err", err)
		}
		failures = append(failures, fmt.Errorf("%s: %w", v, err))
	}

	return nil, fmt.Errorf("%w for %s: %w",
		ErrAllTransportsFailed, cfg.Host, errors.Join(failures...))
}
