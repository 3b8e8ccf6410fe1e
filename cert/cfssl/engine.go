// Package cfssl implements the certificate engine in-process on top of
// cloudflare/cfssl and crypto/x509. It needs no external binary and renders
// certificate text dumps in the same shape the exec engine produces, so the
// validator's parsing works against either engine.
package cfssl

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudflare/cfssl/cli/genkey"
	"github.com/cloudflare/cfssl/config"
	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/cloudflare/cfssl/initca"
	cfssllog "github.com/cloudflare/cfssl/log"
	"github.com/cloudflare/cfssl/signer"
	"github.com/cloudflare/cfssl/signer/local"
	"golang.org/x/crypto/ssh"

	"github.com/srl-labs/devca/cert"
	"github.com/srl-labs/devca/utils"
)

// Engine is the in-process certificate engine.
type Engine struct{}

// New initializes the engine.
func New(debug bool) *Engine {
	// setup loglevel for cfssl
	cfssllog.Level = cfssllog.LevelError
	if debug {
		cfssllog.Level = cfssllog.LevelDebug
	}

	return &Engine{}
}

// Available always succeeds, there is no external binary to probe.
func (e *Engine) Available(_ context.Context) error {
	return nil
}

// GenerateSelfSigned creates a root CA key pair and self-signed certificate
// via cfssl's initca, encrypting the key with the request password.
func (e *Engine) GenerateSelfSigned(_ context.Context, req cert.SelfSignRequest) error {
	kr, err := keyRequest(req.KeyAlgorithm)
	if err != nil {
		return err
	}

	caReq := &csr.CertificateRequest{
		CN:         req.Subject.CommonName,
		Names:      names(req.Subject),
		KeyRequest: kr,
		CA:         &csr.CAConfig{Expiry: hours(req.Days)},
	}

	certPEM, _, keyPEM, err := initca.New(caReq)
	if err != nil {
		return invocationErr("initca", err)
	}

	keyPEM, err = encryptKey(keyPEM, req.Password, req.KeyCipher)
	if err != nil {
		return invocationErr("encrypt-key", err)
	}

	if err := utils.CreatePrivateFile(req.KeyPath, keyPEM); err != nil {
		return err
	}
	return utils.CreateFile(req.CertPath, string(certPEM))
}

// GenerateCSR creates an unencrypted key pair and CSR via cfssl's generator.
func (e *Engine) GenerateCSR(_ context.Context, req cert.CSRRequest) error {
	kr, err := keyRequest(req.KeyAlgorithm)
	if err != nil {
		return err
	}

	creq := &csr.CertificateRequest{
		CN:         req.Subject.CommonName,
		Names:      names(req.Subject),
		KeyRequest: kr,
	}

	// process csr request
	gen := &csr.Generator{Validator: genkey.Validator}
	csrBytes, keyBytes, err := gen.ProcessRequest(creq)
	if err != nil {
		return invocationErr("gencsr", err)
	}

	if err := utils.CreatePrivateFile(req.KeyPath, keyBytes); err != nil {
		return err
	}
	return utils.CreateFile(req.CSRPath, string(csrBytes))
}

// SignCSR signs the CSR with the issuer's key. A CA link is built with a
// crypto/x509 template carrying the DNS name constraint; a leaf goes through
// cfssl's local signer with the requested SAN hosts.
func (e *Engine) SignCSR(_ context.Context, req cert.SignRequest) error {
	caCertPEM, err := utils.ReadFileContent(req.IssuerCertPath)
	if err != nil {
		return err
	}
	caKeyPEM, err := utils.ReadFileContent(req.IssuerKeyPath)
	if err != nil {
		return err
	}

	parsedCa, err := helpers.ParseCertificatePEM(caCertPEM)
	if err != nil {
		return invocationErr("parse-issuer-cert", err)
	}

	var password []byte
	if req.IssuerPassword != "" {
		password = []byte(req.IssuerPassword)
	}

	priv, err := helpers.ParsePrivateKeyPEMWithPassword(caKeyPEM, password)
	if err != nil {
		return invocationErr("parse-issuer-key", err)
	}

	csrPEM, err := utils.ReadFileContent(req.CSRPath)
	if err != nil {
		return err
	}

	var certPEM []byte
	if req.IsCA {
		certPEM, err = signCA(csrPEM, parsedCa, priv, req)
	} else {
		certPEM, err = signLeaf(csrPEM, parsedCa, priv, req)
	}
	if err != nil {
		return err
	}

	return utils.CreateFile(req.CertPath, string(certPEM))
}

// signCA issues a subordinate CA certificate, constrained to the permitted
// DNS suffixes.
func signCA(csrPEM []byte, parsedCa *x509.Certificate, priv crypto.Signer, req cert.SignRequest) ([]byte, error) {
	csrReq, err := helpers.ParseCSRPEM(csrPEM)
	if err != nil {
		return nil, invocationErr("parse-csr", err)
	}

	serial, err := nextSerial(req.SerialPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	certTemplate := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csrReq.Subject,
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.AddDate(0, 0, req.Days),
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},

		PermittedDNSDomainsCritical: true,
		PermittedDNSDomains:         req.PermittedDNS,
	}

	der, err := x509.CreateCertificate(rand.Reader, certTemplate, parsedCa, csrReq.PublicKey, priv)
	if err != nil {
		return nil, invocationErr("sign-ca", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

// signLeaf issues a TLS server certificate with one SAN per requested host.
func signLeaf(csrPEM []byte, parsedCa *x509.Certificate, priv crypto.Signer, req cert.SignRequest) ([]byte, error) {
	profile := &config.SigningProfile{
		Usage:        []string{"signing", "key encipherment", "server auth", "client auth"},
		Expiry:       time.Duration(req.Days) * 24 * time.Hour,
		ExpiryString: hours(req.Days),
	}
	signingConf := &config.Signing{
		Profiles: map[string]*config.SigningProfile{},
		Default:  profile,
	}

	s, err := local.NewSigner(priv, parsedCa, signer.DefaultSigAlgo(priv), signingConf)
	if err != nil {
		return nil, invocationErr("init-signer", err)
	}

	certPEM, err := s.Sign(signer.SignRequest{
		Request: string(csrPEM),
		Hosts:   req.Hostnames,
	})
	if err != nil {
		return nil, invocationErr("sign-leaf", err)
	}

	return certPEM, nil
}

// DumpCertificate renders the certificate in openssl-compatible text form.
func (e *Engine) DumpCertificate(_ context.Context, certPath string, opts cert.DumpOptions) (string, error) {
	c, err := parseCertFile(certPath)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	if !opts.NoHeader && !opts.SANOnly {
		sb.WriteString("Certificate:\n    Data:\n")
		sb.WriteString(fmt.Sprintf("        Serial Number: %s\n", c.SerialNumber.Text(16)))
	}

	if !opts.SANOnly {
		sb.WriteString(fmt.Sprintf("        Issuer: %s\n", dnLine(c.Issuer.Country, c.Issuer.Organization, c.Issuer.CommonName)))
		sb.WriteString("        Validity\n")
		sb.WriteString(fmt.Sprintf("            Not Before: %s\n", validityTime(c.NotBefore)))
		sb.WriteString(fmt.Sprintf("            Not After : %s\n", validityTime(c.NotAfter)))
		sb.WriteString(fmt.Sprintf("        Subject: %s\n", dnLine(c.Subject.Country, c.Subject.Organization, c.Subject.CommonName)))
	}

	if len(c.DNSNames) > 0 {
		sans := make([]string, 0, len(c.DNSNames))
		for _, d := range c.DNSNames {
			sans = append(sans, "DNS:"+d)
		}
		sb.WriteString("            X509v3 Subject Alternative Name:\n")
		sb.WriteString("                " + strings.Join(sans, ", ") + "\n")
	}

	return sb.String(), nil
}

// VerifyChain verifies the certificate for the TLS server purpose against
// the system roots plus the optional bundle.
func (e *Engine) VerifyChain(_ context.Context, certPath, bundlePath string) error {
	c, err := parseCertFile(certPath)
	if err != nil {
		return err
	}

	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	inters := x509.NewCertPool()

	if bundlePath != "" {
		bundle, err := utils.ReadFileContent(bundlePath)
		if err != nil {
			return err
		}
		roots.AppendCertsFromPEM(bundle)
		inters.AppendCertsFromPEM(bundle)
	}

	_, err = c.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inters,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return invocationErr("verify", err)
	}

	return nil
}

// CheckExpiry fails with *cert.ExpiredError when the certificate is expired
// as of now.
func (e *Engine) CheckExpiry(_ context.Context, certPath string) error {
	c, err := parseCertFile(certPath)
	if err != nil {
		return err
	}

	if time.Now().After(c.NotAfter) {
		return &cert.ExpiredError{NotAfter: c.NotAfter}
	}

	return nil
}

// CheckKey fails when the private key file does not parse.
func (e *Engine) CheckKey(_ context.Context, keyPath, password string) error {
	_, err := parseKeyFile(keyPath, password)
	return err
}

// PublicKeyFingerprint returns a SHA-256 digest over the DER form of the
// public key of a certificate or key file.
func (e *Engine) PublicKeyFingerprint(_ context.Context, path string, kind cert.TargetKind, password string) (string, error) {
	var pub crypto.PublicKey

	switch kind {
	case cert.TargetCert:
		c, err := parseCertFile(path)
		if err != nil {
			return "", err
		}
		pub = c.PublicKey
	case cert.TargetKey:
		priv, err := parseKeyFile(path, password)
		if err != nil {
			return "", err
		}
		pub = priv.Public()
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", invocationErr("fingerprint", err)
	}

	sum := sha256.Sum256(der)

	return "SHA256=" + strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

func parseCertFile(path string) (*x509.Certificate, error) {
	b, err := utils.ReadFileContent(path)
	if err != nil {
		// same error type the exec engine produces for an unreadable file
		return nil, invocationErr("read-cert", err)
	}

	c, err := helpers.ParseCertificatePEM(b)
	if err != nil {
		return nil, invocationErr("parse-cert", err)
	}

	return c, nil
}

func parseKeyFile(path, password string) (crypto.Signer, error) {
	b, err := utils.ReadFileContent(path)
	if err != nil {
		return nil, invocationErr("read-key", err)
	}

	if password != "" {
		priv, err := helpers.ParsePrivateKeyPEMWithPassword(b, []byte(password))
		if err != nil {
			return nil, invocationErr("parse-key", err)
		}
		return priv, nil
	}

	raw, err := ssh.ParseRawPrivateKey(b)
	if err != nil {
		return nil, invocationErr("parse-key", err)
	}

	priv, ok := raw.(crypto.Signer)
	if !ok {
		return nil, invocationErr("parse-key", fmt.Errorf("unsupported key type %T", raw))
	}

	return priv, nil
}

// names maps a Subject to the cfssl name list.
func names(s cert.Subject) []csr.Name {
	return []csr.Name{{C: s.Country, O: s.Organization}}
}

// keyRequest parses an "algo:bits" string into a cfssl key request.
func keyRequest(s string) (*csr.KeyRequest, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed key algorithm %q, want algo:bits", s)
	}

	bits, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed key size in %q: %w", s, err)
	}

	return &csr.KeyRequest{A: parts[0], S: bits}, nil
}

// encryptKey password-protects a PEM private key.
func encryptKey(keyPEM []byte, password, cipherName string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM data in generated key")
	}

	alg, err := pemCipher(cipherName)
	if err != nil {
		return nil, err
	}

	enc, err := x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, []byte(password), alg) //nolint:staticcheck
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(enc), nil
}

func pemCipher(name string) (x509.PEMCipher, error) {
	switch name {
	case "aes128":
		return x509.PEMCipherAES128, nil
	case "aes192":
		return x509.PEMCipherAES192, nil
	case "aes256":
		return x509.PEMCipherAES256, nil
	case "3des":
		return x509.PEMCipher3DES, nil
	default:
		return 0, fmt.Errorf("unsupported key cipher %q", name)
	}
}

// hours renders a day count in the duration format cfssl expects.
func hours(days int) string {
	return fmt.Sprintf("%dh", days*24)
}

// validityTime renders a timestamp the way openssl prints validity bounds.
func validityTime(t time.Time) string {
	return t.UTC().Format("Jan _2 15:04:05 2006") + " GMT"
}

// dnLine renders a distinguished name in openssl's one-line form.
func dnLine(country, org []string, cn string) string {
	var parts []string
	if len(country) > 0 {
		parts = append(parts, "C = "+country[0])
	}
	if len(org) > 0 {
		parts = append(parts, "O = "+org[0])
	}
	if cn != "" {
		parts = append(parts, "CN = "+cn)
	}
	return strings.Join(parts, ", ")
}

// invocationErr adapts an in-process failure to the engine error contract.
func invocationErr(op string, err error) error {
	return &cert.EngineInvocationError{
		Cmd:      "cfssl:" + op,
		ExitCode: 1,
		Stderr:   err.Error(),
		Err:      err,
	}
}
