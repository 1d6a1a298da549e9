package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigInvalid matches *ConfigError.
	ErrConfigInvalid = errors.New("smtp configuration invalid")

	// ErrAllTransportsFailed is returned when no variant produced a session.
	ErrAllTransportsFailed = errors.New("all smtp transports failed")

	// ErrNotConfirmed is returned by a probe when the connection opened
	// but the server did not confirm it on the NOOP check.
	ErrNotConfirmed = errors.New("smtp server did not confirm the connection")

	// ErrSessionClosed is returned by any use of a closed Session.
	ErrSessionClosed = errors.New("smtp session closed")
)

// Config holds the SMTP relay settings. Port 0 selects each variant's
// default port; ConnectTimeout 0 leaves timeouts to the OS.
type Config struct {
	Host           string
	Port           uint16
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// ConfigError reports missing required settings. The password itself is
// never included.
type ConfigError struct {
	Host        string
	Username    string
	PasswordLen int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf(
		"smtp host, username and password are all required "+
			"(host=%q username=%q password.len=%d)",
		e.Host, e.Username, e.PasswordLen,
	)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// Validate checks that host, username and password are set.
func (c Config) Validate() error {
	if c.Host == "" || c.Username == "" || c.Password == "" {
		return &ConfigError{
			Host:        c.Host,
			Username:    c.Username,
			PasswordLen: len(c.Password),
		}
	}
	return nil
}
