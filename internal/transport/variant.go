package transport

import "fmt"

// Variant is one way of securing the SMTP connection.
type Variant int

const (
	// VariantDirect connects with TLS from the first byte (SMTPS).
	VariantDirect Variant = iota

	// VariantUpgrade connects in plaintext and upgrades with STARTTLS
	// before authenticating.
	VariantUpgrade
)

// Variants is the fixed negotiation order.
var Variants = [...]Variant{VariantDirect, VariantUpgrade}

const (
	// SubmissionsPort is the implicit-TLS submission port (RFC 8314).
	SubmissionsPort uint16 = 465

	// SubmissionPort is the STARTTLS submission port (RFC 6409).
	SubmissionPort uint16 = 587
)

// DefaultPort is used when the configuration leaves the port unset.
func (v Variant) DefaultPort() uint16 {
	if v == VariantUpgrade {
		return SubmissionPort
	}
	return SubmissionsPort
}

// Port resolves the port for v, preferring an explicit configured port.
func (v Variant) Port(configured uint16) uint16 {
	if configured != 0 {
		return configured
	}
	return v.DefaultPort()
}

func (v Variant) String() string {
	switch v {
	case VariantDirect:
		return "tls"
	case VariantUpgrade:
		return "starttls"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}
