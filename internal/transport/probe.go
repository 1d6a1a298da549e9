package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Probe attempts one variant against one host and port. It returns a
// Session only when an authenticated connection was confirmed by the
// server. A nil Session always comes with a non-nil error.
type Probe interface {
	Probe(ctx context.Context, cfg Config, v Variant, port uint16) (*Session, error)
}

// DialProbe is the network Probe built on go-smtp.
type DialProbe struct {
	// TLSConfig is cloned for each connection; ServerName defaults to the
	// configured host. Nil uses the system roots.
	TLSConfig *tls.Config
}

// Probe dials, authenticates and sends NOOP. No mail is sent. Cancelling
// ctx closes the connection at whatever step it has reached.
func (p *DialProbe) Probe(
	ctx context.Context,
	cfg Config,
	v Variant,
	port uint16,
) (*Session, error) {
	dial := func(ctx context.Context) (Conn, error) {
		return p.connect(ctx, cfg, v, port)
	}

	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	interrupted, err := interruptible(ctx, conn, conn.Noop)
	if interrupted {
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotConfirmed, err)
	}

	return NewSession(v, cfg.Host, port, conn, dial), nil
}

// connect dials and authenticates. ctx bounds every step, including the
// greeting, STARTTLS and AUTH.
func (p *DialProbe) connect(
	ctx context.Context,
	cfg Config,
	v Variant,
	port uint16,
) (*smtp.Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(port)))
	tlsConfig := p.tlsConfig(cfg.Host)
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	var conn net.Conn
	var err error
	switch v {
	case VariantDirect:
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).
			DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
	case VariantUpgrade:
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial to %s: %w", addr, err)
		}
	default:
		return nil, fmt.Errorf("unknown transport variant %s", v)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	client, err := p.handshake(conn, cfg, v, addr)
	if !stop() {
		if client != nil {
			_ = client.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return client, nil
}

// handshake reads the greeting, upgrades to TLS for VariantUpgrade and
// authenticates.
func (p *DialProbe) handshake(
	conn net.Conn,
	cfg Config,
	v Variant,
	addr string,
) (*smtp.Client, error) {
	// Bound the greeting and STARTTLS exchange.
	if cfg.ConnectTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	}

	var client *smtp.Client
	if v == VariantUpgrade {
		var err error
		client, err = smtp.NewClientStartTLS(conn, p.tlsConfig(cfg.Host))
		if err != nil {
			return nil, fmt.Errorf("SMTP STARTTLS with %s: %w", addr, err)
		}
	} else {
		client = smtp.NewClient(conn)
	}
	_ = conn.SetDeadline(time.Time{})

	if cfg.ConnectTimeout > 0 {
		client.CommandTimeout = cfg.ConnectTimeout
	}

	if err := authenticate(client, cfg); err != nil {
		return nil, fmt.Errorf("SMTP auth as %s on %s: %w", cfg.Username, addr, err)
	}

	return client, nil
}

func (p *DialProbe) tlsConfig(host string) *tls.Config {
	var c *tls.Config
	if p.TLSConfig != nil {
		c = p.TLSConfig.Clone()
	} else {
		c = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if c.ServerName == "" {
		c.ServerName = host
	}
	return c
}

// authenticate prefers PLAIN and falls back to LOGIN.
func authenticate(client *smtp.Client, cfg Config) error {
	ok, params := client.Extension("AUTH")
	if !ok {
		return errors.New("server does not offer AUTH")
	}

	mechs := strings.Fields(strings.ToUpper(params))
	for _, want := range []string{sasl.Plain, sasl.Login} {
		for _, mech := range mechs {
			if mech != want {
				continue
			}
			if want == sasl.Plain {
				return client.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password))
			}
			return client.Auth(sasl.NewLoginClient(cfg.Username, cfg.Password))
		}
	}

	return fmt.Errorf("no supported AUTH mechanism in %q", params)
}
