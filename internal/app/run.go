// Package app wires the notifier's components together and owns the
// process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/steam-trading-notice/internal/archive"
	"github.com/nhle/steam-trading-notice/internal/credential"
	"github.com/nhle/steam-trading-notice/internal/fetch"
	"github.com/nhle/steam-trading-notice/internal/metrics"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/notify"
	"github.com/nhle/steam-trading-notice/internal/scheduler"
	"github.com/nhle/steam-trading-notice/internal/source"
	"github.com/nhle/steam-trading-notice/internal/source/browserless"
	"github.com/nhle/steam-trading-notice/internal/source/datadump"
	"github.com/nhle/steam-trading-notice/internal/store"
	"github.com/nhle/steam-trading-notice/internal/transport"
)

// Options carries the collaborators Run does not build itself. Zero
// values select the production implementations.
type Options struct {
	// NoTestMail skips the startup test message.
	NoTestMail bool

	// Credentials resolves the SMTP password when the config has none.
	Credentials *credential.Store

	// Probe overrides the network SMTP probe.
	Probe transport.Probe

	// Store overrides the SQLite history at cfg.Store.Path. Run does not
	// close a store it did not open.
	Store store.Store

	Metrics *metrics.Metrics

	// Manual delivers requests for an immediate notification.
	Manual <-chan struct{}
}

// Run starts the agent and blocks until ctx is cancelled, then shuts down
// the scheduler, the SMTP session and the store, in that order.
func Run(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger, opts Options) error {
	st := opts.Store
	if st == nil {
		sqlite, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening delivery history: %w", err)
		}
		st = sqlite
		defer func() {
			if err := sqlite.Close(); err != nil {
				logger.Warn("closing delivery history", "err", err)
			}
		}()
	}

	logLastDelivery(ctx, st, logger)

	password := cfg.Mail.SMTPPassword
	if opts.Credentials != nil {
		resolved, err := opts.Credentials.SMTPPassword(cfg.Mail.SMTPUsername, password)
		if err != nil {
			logger.Warn("reading smtp password from keyring", "err", err)
		} else {
			password = resolved
		}
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	probe := opts.Probe
	if probe == nil {
		probe = &transport.DialProbe{}
	}

	rt := NewRuntime(logger)
	negotiator := transport.NewNegotiator(probe, logger, m)
	err := rt.ConnectMailer(ctx, negotiator, transport.Config{
		Host:           cfg.Mail.SMTPHost,
		Port:           cfg.Mail.SMTPPort,
		Username:       cfg.Mail.SMTPUsername,
		Password:       password,
		ConnectTimeout: cfg.Mail.SMTPTimeoutDuration(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(); err != nil && !errors.Is(err, transport.ErrSessionClosed) {
			logger.Warn("closing smtp session", "err", err)
		}
	}()

	session, err := rt.Session()
	if err != nil {
		return err
	}
	logger.Info("smtp session ready", "addr", session.Addr(), "variant", session.Variant())

	if err := rt.InitHTTPClient(time.Duration(cfg.Fetch.TimeoutSec) * time.Second); err != nil {
		return err
	}
	httpClient, err := rt.HTTPClient()
	if err != nil {
		return err
	}

	fetcher := fetch.NewClient(httpClient, archive.NewExtractor(logger), logger, m)
	notifier := notify.New(notify.Options{
		From:        cfg.Mail.SMTPUsername,
		Recipients:  cfg.Mail.SMTPSendTo,
		Screenshots: browserless.NewClient(cfg.Browserless, fetcher, cfg.Fetch.MaxResponseBytes, logger),
		Dumps:       dumpSource(cfg, fetcher, logger),
		Sender:      session,
		Store:       st,
		Metrics:     m,
		Logger:      logger,
	})

	if !opts.NoTestMail {
		// A failed test mail is logged; the agent keeps running.
		if err := notifier.SendTest(ctx); err != nil {
			logger.Error("test mail failed", "err", err)
		}
	}

	sched, err := scheduler.New(
		cfg.Scheduler.Cron,
		cfg.Scheduler.Timezone,
		func(ctx context.Context, manual bool) error {
			kind := model.DeliveryKindScheduled
			if manual {
				kind = model.DeliveryKindManual
			}
			_, err := notifier.Notify(ctx, kind)
			return err
		},
		logger,
	)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.Scheduler.Cron == "" {
		logger.Info("no cron expression configured, periodic notifications disabled")
	} else {
		logger.Info("scheduler started", "cron", cfg.Scheduler.Cron, "next", sched.Status().Next)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
			return m.Serve(gctx, cfg.Metrics.Listen)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case _, ok := <-opts.Manual:
				if !ok {
					<-gctx.Done()
					return nil
				}
				if !sched.Trigger() {
					logger.Info("manual notification already pending")
				}
			}
		}
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func logLastDelivery(ctx context.Context, st store.Store, logger *slog.Logger) {
	last, err := st.LastSuccessful(ctx)
	switch {
	case err != nil:
		logger.Warn("reading delivery history", "err", err)
	case last == nil:
		logger.Info("no successful delivery recorded yet")
	default:
		logger.Info("last successful delivery", "at", last.CreatedAt, "kind", last.Kind)
	}
}

func dumpSource(cfg *model.AppConfig, fetcher *fetch.Client, logger *slog.Logger) source.DumpSource {
	if cfg.DataDump.ListURL == "" {
		return nil
	}
	return datadump.NewClient(cfg.DataDump, fetcher, datadump.Limits{
		MaxListBytes:         cfg.Fetch.MaxResponseBytes,
		MaxArchiveBytes:      cfg.Fetch.MaxArchiveBytes,
		MaxUncompressedBytes: cfg.Fetch.MaxUncompressedBytes,
	}, logger)
}
