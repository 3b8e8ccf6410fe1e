package cert

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/srl-labs/devca/utils"
)

// Descriptor references a certificate/key pair on disk, together with the
// password of an encrypted key when one is set. Identity is the pair of
// paths; the password only ever lives in memory.
type Descriptor struct {
	CertPath string
	KeyPath  string

	password string

	details     string
	detailsRead bool
}

// NewDescriptor creates a Descriptor for the given certificate and key
// paths.
func NewDescriptor(certPath, keyPath string) *Descriptor {
	return &Descriptor{
		CertPath: certPath,
		KeyPath:  keyPath,
	}
}

// NewDescriptorWithPassword creates a Descriptor whose private key is
// encrypted with password.
func NewDescriptorWithPassword(certPath, keyPath, password string) *Descriptor {
	d := NewDescriptor(certPath, keyPath)
	d.password = password
	return d
}

// Password returns the key password, empty for unencrypted keys.
func (d *Descriptor) Password() string {
	return d.password
}

// Loadable reports whether both the certificate and the key file are present
// and readable. Presence of these files is the hierarchy's only state.
func (d *Descriptor) Loadable() bool {
	for _, p := range []string{d.CertPath, d.KeyPath} {
		if !utils.FileExists(p) {
			return false
		}
		f, err := os.Open(p)
		if err != nil {
			log.Debugf("cannot open %s: %v", p, err)
			return false
		}
		f.Close()
	}
	return true
}

// Details returns the human-readable text dump of the certificate,
// restricted to the Subject Alternative Name extension and without header
// fields. The engine is consulted once; the result is memoized.
func (d *Descriptor) Details(ctx context.Context, e Engine) (string, error) {
	if d.detailsRead {
		return d.details, nil
	}

	text, err := e.DumpCertificate(ctx, d.CertPath, DumpOptions{
		SANOnly:  true,
		NoHeader: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read details of %s: %w", d.CertPath, err)
	}

	d.details = text
	d.detailsRead = true

	return d.details, nil
}
