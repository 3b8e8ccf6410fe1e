// Package openssl implements the certificate engine by shelling out to the
// openssl binary. Key passwords are streamed to the process on stdin, never
// passed via argv where they would leak into process listings.
package openssl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"

	"github.com/srl-labs/devca/cert"
)

// DefaultCommand invokes openssl from PATH.
const DefaultCommand = "openssl"

// Engine is the exec-based certificate engine.
type Engine struct {
	cmd []string
}

// New returns an Engine invoking the default openssl binary.
func New() *Engine {
	return &Engine{cmd: []string{DefaultCommand}}
}

// NewWithCommand returns an Engine invoking the given command string, which
// may carry leading arguments, e.g. "docker run --rm alpine/openssl".
func NewWithCommand(command string) (*Engine, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty engine command")
	}
	return &Engine{cmd: parts}, nil
}

// Available probes the binary once at startup.
func (e *Engine) Available(ctx context.Context) error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return err
	}
	_, err := e.run(ctx, "", "version")
	return err
}

// GenerateSelfSigned creates an encrypted key pair and a self-signed CA
// certificate.
func (e *Engine) GenerateSelfSigned(ctx context.Context, req cert.SelfSignRequest) error {
	algo, bits, err := splitKeyAlgorithm(req.KeyAlgorithm)
	if err != nil {
		return err
	}

	_, err = e.run(ctx, req.Password,
		"genpkey",
		"-algorithm", strings.ToUpper(algo),
		"-pkeyopt", "rsa_keygen_bits:"+bits,
		"-"+req.KeyCipher,
		"-pass", "stdin",
		"-out", req.KeyPath,
	)
	if err != nil {
		return err
	}
	if err := os.Chmod(req.KeyPath, 0o600); err != nil {
		return err
	}

	_, err = e.run(ctx, req.Password,
		"req", "-new", "-x509", "-sha256",
		"-config", req.ConfigPath,
		"-days", fmt.Sprint(req.Days),
		"-key", req.KeyPath,
		"-passin", "stdin",
		"-subj", subjectArg(req.Subject),
		"-extensions", req.Extensions,
		"-out", req.CertPath,
	)
	return err
}

// GenerateCSR creates an unencrypted key pair and a certificate signing
// request.
func (e *Engine) GenerateCSR(ctx context.Context, req cert.CSRRequest) error {
	_, err := e.run(ctx, "",
		"req", "-new", "-sha256",
		"-config", req.ConfigPath,
		"-newkey", req.KeyAlgorithm,
		"-nodes",
		"-keyout", req.KeyPath,
		"-subj", subjectArg(req.Subject),
		"-out", req.CSRPath,
	)
	if err != nil {
		return err
	}
	return os.Chmod(req.KeyPath, 0o600)
}

// SignCSR signs a CSR with the issuer's certificate and key, applying the
// extension section from the request's config file.
func (e *Engine) SignCSR(ctx context.Context, req cert.SignRequest) error {
	args := []string{
		"x509", "-req", "-sha256",
		"-in", req.CSRPath,
		"-CA", req.IssuerCertPath,
		"-CAkey", req.IssuerKeyPath,
		"-CAserial", req.SerialPath,
		"-CAcreateserial",
		"-days", fmt.Sprint(req.Days),
		"-extfile", req.ConfigPath,
		"-extensions", req.Extensions,
		"-out", req.CertPath,
	}

	stdin := ""
	if req.IssuerPassword != "" {
		args = append(args, "-passin", "stdin")
		stdin = req.IssuerPassword
	}

	_, err := e.run(ctx, stdin, args...)
	return err
}

// DumpCertificate returns the human-readable text form of a certificate.
func (e *Engine) DumpCertificate(ctx context.Context, certPath string, opts cert.DumpOptions) (string, error) {
	args := []string{"x509", "-noout", "-text", "-in", certPath}
	if opts.SANOnly {
		args = append(args, "-ext", "subjectAltName")
	}
	if opts.NoHeader {
		args = append(args, "-certopt", "no_header")
	}
	return e.run(ctx, "", args...)
}

// VerifyChain verifies the certificate for the TLS server purpose.
func (e *Engine) VerifyChain(ctx context.Context, certPath, bundlePath string) error {
	args := []string{"verify", "-purpose", "sslserver"}
	if bundlePath != "" {
		args = append(args, "-CAfile", bundlePath, "-untrusted", bundlePath)
	}
	args = append(args, certPath)

	_, err := e.run(ctx, "", args...)
	return err
}

// CheckExpiry fails with *cert.ExpiredError when the certificate is expired
// as of now.
func (e *Engine) CheckExpiry(ctx context.Context, certPath string) error {
	_, err := e.run(ctx, "", "x509", "-checkend", "0", "-noout", "-in", certPath)

	// openssl exits 1 both when the check fails and when the certificate
	// does not load; only the latter reports on stderr
	var inv *cert.EngineInvocationError
	if errors.As(err, &inv) && inv.ExitCode == 1 && strings.TrimSpace(inv.Stderr) == "" {
		return &cert.ExpiredError{}
	}

	return err
}

// CheckKey fails when the private key does not parse as structurally valid.
func (e *Engine) CheckKey(ctx context.Context, keyPath, password string) error {
	args := []string{"pkey", "-check", "-noout", "-in", keyPath}
	stdin := ""
	if password != "" {
		args = append(args, "-passin", "stdin")
		stdin = password
	}

	_, err := e.run(ctx, stdin, args...)
	return err
}

// PublicKeyFingerprint returns the RSA modulus of a certificate or key.
func (e *Engine) PublicKeyFingerprint(ctx context.Context, path string, kind cert.TargetKind, password string) (string, error) {
	var args []string
	stdin := ""

	switch kind {
	case cert.TargetCert:
		args = []string{"x509", "-noout", "-modulus", "-in", path}
	case cert.TargetKey:
		args = []string{"rsa", "-noout", "-modulus", "-in", path}
		if password != "" {
			args = append(args, "-passin", "stdin")
			stdin = password
		}
	}

	out, err := e.run(ctx, stdin, args...)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// run executes one openssl invocation, optionally feeding stdin, and
// returns captured stdout. A non-zero exit resolves to
// *cert.EngineInvocationError carrying the exact command and stderr.
func (e *Engine) run(ctx context.Context, stdin string, args ...string) (string, error) {
	full := append(append([]string{}, e.cmd...), args...)

	log.Debugf("running %s", strings.Join(full, " "))

	cmd := exec.CommandContext(ctx, full[0], full[1:]...) //nolint:gosec
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin + "\n")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return "", &cert.EngineInvocationError{
			Cmd:      strings.Join(full, " "),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.String(), nil
}

// subjectArg renders a Subject in openssl's /C=/O=/CN= form.
func subjectArg(s cert.Subject) string {
	return fmt.Sprintf("/C=%s/O=%s/CN=%s", s.Country, s.Organization, s.CommonName)
}

// splitKeyAlgorithm splits "rsa:2048" into algorithm and bit size.
func splitKeyAlgorithm(s string) (algo, bits string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed key algorithm %q, want algo:bits", s)
	}
	return parts[0], parts[1], nil
}
