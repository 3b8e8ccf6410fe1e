package cert

import "context"

// TargetKind selects whether an engine operation addresses a certificate or
// a private key file.
type TargetKind int

const (
	TargetCert TargetKind = iota
	TargetKey
)

// Subject is the distinguished name of a certificate request.
type Subject struct {
	Country      string
	Organization string
	CommonName   string
}

// SelfSignRequest describes the creation of a self-signed CA certificate.
type SelfSignRequest struct {
	Subject      Subject
	Days         int
	KeyAlgorithm string // e.g. "rsa:2048"
	KeyCipher    string // e.g. "aes256", encrypts the generated key
	Password     string // streamed to the engine, never passed via argv
	KeyPath      string
	CertPath     string
	ConfigPath   string // shared policy config
	Extensions   string // extension section within ConfigPath
}

// CSRRequest describes the creation of a key pair and certificate signing
// request.
type CSRRequest struct {
	Subject      Subject
	KeyAlgorithm string
	KeyPath      string
	CSRPath      string
	ConfigPath   string
}

// SignRequest describes signing a CSR with an issuer's certificate and key.
type SignRequest struct {
	CSRPath        string
	IssuerCertPath string
	IssuerKeyPath  string
	IssuerPassword string // streamed to the engine, never passed via argv
	CertPath       string
	Days           int
	SerialPath     string
	ConfigPath     string // file carrying the extension section to apply
	Extensions     string // extension section within ConfigPath

	// Structured view of the extensions for engines that do not consume
	// config files. Hostnames is non-empty for leaf certificates,
	// PermittedDNS constrains a new CA link.
	IsCA         bool
	Hostnames    []string
	PermittedDNS []string
}

// DumpOptions filter the human-readable certificate text dump.
type DumpOptions struct {
	// SANOnly limits extension output to the Subject Alternative Name.
	SANOnly bool
	// NoHeader suppresses header fields of the dump.
	NoHeader bool
}

// Engine abstracts the certificate-authority engine that performs the actual
// cryptographic operations. The exec implementation in cert/openssl shells
// out to the openssl binary, the one in cert/cfssl runs in-process.
type Engine interface {
	// Available reports whether the engine can be used. Checked once by the
	// builder factory; a failing engine is fatal.
	Available(ctx context.Context) error

	GenerateSelfSigned(ctx context.Context, req SelfSignRequest) error
	GenerateCSR(ctx context.Context, req CSRRequest) error
	SignCSR(ctx context.Context, req SignRequest) error

	// DumpCertificate returns the human-readable text form of a certificate.
	DumpCertificate(ctx context.Context, certPath string, opts DumpOptions) (string, error)
	// VerifyChain verifies certPath for the TLS server purpose against the
	// system trust roots plus the optional CA bundle.
	VerifyChain(ctx context.Context, certPath, bundlePath string) error
	// CheckExpiry fails with *ExpiredError when the certificate is expired
	// as of now.
	CheckExpiry(ctx context.Context, certPath string) error
	// CheckKey fails when the private key file is not structurally valid.
	CheckKey(ctx context.Context, keyPath, password string) error
	// PublicKeyFingerprint returns a comparable public key identifier (the
	// RSA modulus or an equivalent digest) of a certificate or key file.
	PublicKeyFingerprint(ctx context.Context, path string, kind TargetKind, password string) (string, error)
}
