// Package compose builds the notification mail: an HTML body with the
// screenshot inlined, a plain-text fallback, and optional attachments.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// ErrNoRecipients is returned when no recipient address could be parsed.
var ErrNoRecipients = errors.New("no valid recipients")

// Inline is a part referenced from the HTML body as cid:ContentID.
type Inline struct {
	ContentID   string
	ContentType string
	Filename    string
	Data        []byte
}

// Attachment is a downloadable part.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message describes a mail to build. Recipients are only placed on the
// envelope, so they do not see each other.
type Message struct {
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Inline      []Inline
	Attachments []Attachment
	Date        time.Time
}

// Built is a serialized mail plus its envelope.
type Built struct {
	From       string
	Recipients []string
	Data       []byte
}

// Build renders msg as RFC 5322 bytes. Recipients that fail to parse are
// logged and skipped; an unparsable sender is an error.
func Build(msg Message, logger *slog.Logger) (*Built, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("parsing sender %q: %w", msg.From, err)
	}

	recipients := make([]string, 0, len(msg.To))
	for _, raw := range msg.To {
		to, err := mail.ParseAddress(raw)
		if err != nil {
			logger.Error("skipping unparsable recipient", "send_to", raw, "err", err)
			continue
		}
		recipients = append(recipients, to.Address)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.Set("To", "undisclosed-recipients:;")
	h.SetSubject(msg.Subject)
	h.Set("MIME-Version", "1.0")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	if len(msg.Attachments) > 0 {
		h.SetContentType("multipart/mixed", nil)
		mw, err := message.CreateWriter(&buf, h.Header)
		if err != nil {
			return nil, fmt.Errorf("creating mail writer: %w", err)
		}
		if err := writeAlternative(mw, msg); err != nil {
			return nil, err
		}
		for _, a := range msg.Attachments {
			if err := writeAttachment(mw, a); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("closing mail: %w", err)
		}
	} else {
		h.SetContentType("multipart/alternative", nil)
		mw, err := message.CreateWriter(&buf, h.Header)
		if err != nil {
			return nil, fmt.Errorf("creating mail writer: %w", err)
		}
		if err := writeAlternativeParts(mw, msg); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("closing mail: %w", err)
		}
	}

	return &Built{
		From:       from.Address,
		Recipients: recipients,
		Data:       buf.Bytes(),
	}, nil
}

// writeAlternative nests a multipart/alternative inside parent.
func writeAlternative(parent *message.Writer, msg Message) error {
	var h message.Header
	h.SetContentType("multipart/alternative", nil)
	w, err := parent.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating alternative part: %w", err)
	}
	if err := writeAlternativeParts(w, msg); err != nil {
		return err
	}
	return w.Close()
}

// writeAlternativeParts writes the text fallback, then the HTML with its
// inline parts in a multipart/related.
func writeAlternativeParts(w *message.Writer, msg Message) error {
	if err := writeText(w, "text/plain", msg.Text); err != nil {
		return err
	}

	if len(msg.Inline) == 0 {
		return writeText(w, "text/html", msg.HTML)
	}

	var h message.Header
	h.SetContentType("multipart/related", map[string]string{"type": "text/html"})
	related, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating related part: %w", err)
	}
	if err := writeText(related, "text/html", msg.HTML); err != nil {
		return err
	}
	for _, in := range msg.Inline {
		if err := writeInline(related, in); err != nil {
			return err
		}
	}
	return related.Close()
}

func writeText(parent *message.Writer, contentType, body string) error {
	var h message.Header
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return writeLeaf(parent, h, []byte(body), contentType)
}

func writeInline(parent *message.Writer, in Inline) error {
	var h message.Header
	h.SetContentType(in.ContentType, nil)
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-ID", "<"+in.ContentID+">")
	params := map[string]string{}
	if in.Filename != "" {
		params["filename"] = in.Filename
	}
	h.SetContentDisposition("inline", params)
	return writeLeaf(parent, h, in.Data, "inline "+in.ContentID)
}

func writeAttachment(parent *message.Writer, a Attachment) error {
	var h message.Header
	h.SetContentType(a.ContentType, nil)
	h.Set("Content-Transfer-Encoding", "base64")
	h.SetContentDisposition("attachment", map[string]string{"filename": a.Filename})
	return writeLeaf(parent, h, a.Data, "attachment "+a.Filename)
}

func writeLeaf(parent *message.Writer, h message.Header, data []byte, what string) error {
	w, err := parent.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", what, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s part: %w", what, err)
	}
	return w.Close()
}
