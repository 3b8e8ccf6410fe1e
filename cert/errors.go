package cert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEngineUnavailable is returned when the configured certificate engine
// cannot be used at all, e.g. the openssl binary is not installed.
var ErrEngineUnavailable = errors.New("certificate engine unavailable")

// ErrOverwriteDeclined is returned when the operator declines to overwrite
// existing certificate or key files, or declines the creation of a missing
// CA level. It aborts the current issuance only.
var ErrOverwriteDeclined = errors.New("declined by operator")

// EngineInvocationError is returned when an engine operation fails. For the
// exec engine it carries the exact invoked command, its exit code and stderr.
type EngineInvocationError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineInvocationError) Error() string {
	msg := fmt.Sprintf("engine invocation %q failed with exit code %d", e.Cmd, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *EngineInvocationError) Unwrap() error { return e.Err }

// ParseError is returned when an expected pattern is absent from the
// engine's certificate text output.
type ParseError struct {
	Pattern string
	Text    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pattern %q not found in certificate text", e.Pattern)
}

// ExpiredError is returned when a certificate's NotAfter is in the past.
type ExpiredError struct {
	NotAfter time.Time
}

func (e *ExpiredError) Error() string {
	if e.NotAfter.IsZero() {
		return "certificate is expired"
	}
	return fmt.Sprintf("certificate expired on %s", e.NotAfter.Format(time.RFC3339))
}

// MissingHostnamesError is returned when a certificate does not cover all
// requested hostnames. Missing holds every requested name absent from the
// certificate's combined CN+SAN set.
type MissingHostnamesError struct {
	Missing []string
}

func (e *MissingHostnamesError) Error() string {
	return fmt.Sprintf("certificate does not cover hostnames: %s", strings.Join(e.Missing, ", "))
}

// KeyMismatchError is returned when a private key does not belong to a
// certificate.
type KeyMismatchError struct {
	CertPath string
	KeyPath  string
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("private key %s does not match certificate %s", e.KeyPath, e.CertPath)
}

// CleanupError is returned when the ephemeral workspace could not be
// removed. Fatal signals that an ephemeral root CA key is left behind,
// which is a security hazard rather than a cosmetic failure.
type CleanupError struct {
	Dir   string
	Fatal bool
	Err   error
}

func (e *CleanupError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("failed to remove workspace %s holding a root CA key: %v", e.Dir, e.Err)
	}
	return fmt.Sprintf("failed to remove workspace %s: %v", e.Dir, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
