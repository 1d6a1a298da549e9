package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
)

// Conn is the authenticated SMTP connection behind a Session.
// *smtp.Client from go-smtp satisfies it.
type Conn interface {
	Noop() error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

// DialFunc opens a fresh authenticated connection with the settings that
// were verified during negotiation.
type DialFunc func(ctx context.Context) (Conn, error)

// Session is the process-wide handle to a verified SMTP relay. It is safe
// for concurrent use; sends are serialized over one connection, which is
// re-dialed with the negotiated variant when the server has dropped it.
type Session struct {
	variant Variant
	host    string
	port    uint16
	dial    DialFunc

	mu     sync.Mutex
	conn   Conn
	closed bool
}

// NewSession wraps an established connection. dial is used to replace the
// connection after it goes stale.
func NewSession(
	variant Variant,
	host string,
	port uint16,
	conn Conn,
	dial DialFunc,
) *Session {
	return &Session{
		variant: variant,
		host:    host,
		port:    port,
		conn:    conn,
		dial:    dial,
	}
}

// Variant returns the transport variant that was negotiated.
func (s *Session) Variant() Variant {
	return s.variant
}

// Addr returns host:port of the relay.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(int(s.port)))
}

// Send submits one message to the given envelope recipients. A failed
// send drops the connection; it is not retried. Cancelling ctx closes the
// connection mid-exchange and Send returns ctx.Err().
func (s *Session) Send(
	ctx context.Context,
	from string,
	to []string,
	msg []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.conn != nil {
		conn := s.conn
		interrupted, err := interruptible(ctx, conn, conn.Noop)
		if err != nil || interrupted {
			if !interrupted {
				_ = conn.Close()
			}
			s.conn = nil
		}
		if interrupted {
			return ctx.Err()
		}
	}
	if s.conn == nil {
		if s.dial == nil {
			return fmt.Errorf("reconnecting to %s: no dialer", s.Addr())
		}
		conn, err := s.dial(ctx)
		if err != nil {
			return fmt.Errorf("reconnecting to %s over %s: %w", s.Addr(), s.variant, err)
		}
		s.conn = conn
	}

	conn := s.conn
	interrupted, err := interruptible(ctx, conn, func() error {
		return conn.SendMail(from, to, bytes.NewReader(msg))
	})
	if err != nil || interrupted {
		if !interrupted {
			_ = conn.Close()
		}
		s.conn = nil
	}
	if err != nil {
		if interrupted {
			return ctx.Err()
		}
		return fmt.Errorf("sending mail via %s: %w", s.Addr(), err)
	}

	return nil
}

// interruptible runs op and closes conn if ctx is done before op returns.
// The boolean reports whether conn was closed that way.
func interruptible(ctx context.Context, conn Conn, op func() error) (bool, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	err := op()
	return !stop(), err
}

// Close ends the session. Only the first call does anything; later calls
// return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Quit(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("closing smtp session to %s: %w", s.Addr(), err)
	}
	return nil
}
