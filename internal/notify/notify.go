// Package notify runs the notification job: screenshot the market page,
// pull the latest data dump, mail both, and record the delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/nhle/steam-trading-notice/internal/compose"
	"github.com/nhle/steam-trading-notice/internal/metrics"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/source"
	"github.com/nhle/steam-trading-notice/internal/store"
)

// Sender submits a serialized mail. *transport.Session satisfies it.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Options wires a Notifier. Dumps may be nil to send screenshots only.
type Options struct {
	From       string
	Recipients []string

	Screenshots source.Screenshotter
	Dumps       source.DumpSource
	Sender      Sender
	Store       store.Store
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Notifier builds and sends notification mails.
type Notifier struct {
	from       string
	recipients []string

	screenshots source.Screenshotter
	dumps       source.DumpSource
	sender      Sender
	store       store.Store
	metrics     *metrics.Metrics
	logger      *slog.Logger

	now func() time.Time
}

// New creates a Notifier.
func New(opts Options) *Notifier {
	return &Notifier{
		from:        opts.From,
		recipients:  opts.Recipients,
		screenshots: opts.Screenshots,
		dumps:       opts.Dumps,
		sender:      opts.Sender,
		store:       opts.Store,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// SendTest mails the startup message that lets recipients confirm they
// can receive notifications.
func (n *Notifier) SendTest(ctx context.Context) error {
	_, err := n.Notify(ctx, model.DeliveryKindTest)
	return err
}

// Notify runs one notification of the given kind. The attempt is
// recorded whether or not it succeeds.
func (n *Notifier) Notify(ctx context.Context, kind model.DeliveryKind) (model.Delivery, error) {
	now := n.now()
	d := model.Delivery{
		Kind:      kind,
		Subject:   subjectFor(kind, now),
		Status:    model.DeliveryStatusFailed,
		CreatedAt: now,
	}

	err := n.run(ctx, &d)
	if err != nil {
		d.Error = err.Error()
		n.logger.Error("notification failed", "kind", kind, "err", err)
	} else {
		d.Status = model.DeliveryStatusSent
		n.logger.Info("notification sent",
			"kind", kind,
			"recipients", d.Recipients,
			"screenshot_bytes", d.ScreenshotBytes,
			"dump_bytes", d.DumpBytes,
		)
	}
	n.metrics.Delivery(string(kind), string(d.Status))

	// The caller's context may already be cancelled; the record still
	// belongs in the history.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	recorded, recErr := n.store.RecordDelivery(recordCtx, d)
	if recErr != nil {
		n.logger.Warn("recording delivery failed", "err", recErr)
	} else {
		d = recorded
	}

	return d, err
}

func (n *Notifier) run(ctx context.Context, d *model.Delivery) error {
	jpeg, err := n.screenshots.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("taking screenshot: %w", err)
	}
	d.ScreenshotBytes = len(jpeg)

	var dump *source.Dump
	if n.dumps != nil {
		dump, err = n.dumps.Latest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Warn("data dump unavailable, sending screenshot only", "err", err)
			dump = nil
		} else {
			d.DumpBytes = len(dump.Text)
		}
	}

	msg, err := n.message(d, jpeg, dump)
	if err != nil {
		return err
	}

	built, err := compose.Build(msg, n.logger)
	if err != nil {
		return fmt.Errorf("building mail: %w", err)
	}
	d.Recipients = built.Recipients

	n.logger.Info("sending notification", "recipients", built.Recipients)

	if err := n.sender.Send(ctx, built.From, built.Recipients, built.Data); err != nil {
		return err
	}
	return nil
}

func (n *Notifier) message(d *model.Delivery, jpeg []byte, dump *source.Dump) (compose.Message, error) {
	heading := "最新的 Steam 挂刀情报"
	if d.Kind == model.DeliveryKindTest {
		heading = "本邮件用于测试您是否能收到 STN 的邮件通知，避免遗失消息"
	}

	data := bodyData{
		Subject:       d.Subject,
		Heading:       heading,
		ScreenshotCID: screenshotCID,
	}
	if dump != nil {
		data.DumpName = dump.Name
	}

	html, err := renderHTML(data)
	if err != nil {
		return compose.Message{}, err
	}

	msg := compose.Message{
		From:    n.from,
		To:      n.recipients,
		Subject: d.Subject,
		Text:    textFallback,
		HTML:    html,
		Inline: []compose.Inline{{
			ContentID:   screenshotCID,
			ContentType: "image/jpeg",
			Filename:    "screenshot.jpg",
			Data:        jpeg,
		}},
		Date: d.CreatedAt,
	}
	if dump != nil {
		msg.Attachments = []compose.Attachment{{
			Filename:    attachmentName(dump.Name),
			ContentType: "text/csv",
			Data:        []byte(dump.Text),
		}}
	}

	return msg, nil
}

func subjectFor(kind model.DeliveryKind, now time.Time) string {
	if kind == model.DeliveryKindTest {
		return testSubject
	}
	return reportSubject + " " + now.Format("2006-01-02 15:04")
}

// attachmentName swaps the archive extension for .csv.
func attachmentName(dumpName string) string {
	base := path.Base(dumpName)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "dump"
	}
	return base + ".csv"
}
