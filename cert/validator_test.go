package cert_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srl-labs/devca/cert"
	cfsslengine "github.com/srl-labs/devca/cert/cfssl"
)

// selfSignedCert writes a self-signed server certificate with a chosen
// expiration time and returns its descriptor. The cert doubles as its own
// trust anchor.
func selfSignedCert(t *testing.T, notAfter time.Time, hosts []string) *cert.Descriptor {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: hosts[0], Organization: []string{"Acme"}},
		NotBefore:             notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              hosts,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, hosts[0]+cert.CertFileSuffix)
	keyPath := filepath.Join(dir, hosts[0]+cert.KeyFileSuffix)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	return cert.NewDescriptor(certPath, keyPath)
}

func newBundledValidator(desc *cert.Descriptor) *cert.Validator {
	v := cert.NewValidator(cfsslengine.New(false))
	v.CABundle = desc.CertPath
	return v
}

func TestValidateExpired(t *testing.T) {
	desc := selfSignedCert(t, time.Now().Add(-time.Hour), []string{"old.test"})

	err := newBundledValidator(desc).Validate(context.Background(), desc, []string{"old.test"})

	var exp *cert.ExpiredError
	require.ErrorAs(t, err, &exp)
	require.WithinDuration(t, time.Now().Add(-time.Hour), exp.NotAfter, time.Minute)
}

func TestValidateNearExpiryWarnsOnly(t *testing.T) {
	// 10 days left: inside the warning window but still valid
	desc := selfSignedCert(t, time.Now().Add(10*24*time.Hour), []string{"soon.test"})

	err := newBundledValidator(desc).Validate(context.Background(), desc, []string{"soon.test"})
	require.NoError(t, err)
}

func TestValidateHealthyCert(t *testing.T) {
	desc := selfSignedCert(t, time.Now().Add(20*24*time.Hour), []string{"ok.test", "alt.test"})

	err := newBundledValidator(desc).Validate(context.Background(), desc, []string{"ok.test", "alt.test"})
	require.NoError(t, err)
}

func TestValidateUntrustedChain(t *testing.T) {
	desc := selfSignedCert(t, time.Now().Add(20*24*time.Hour), []string{"lone.test"})

	// no bundle: the self-signed cert has no anchor to chain to
	v := cert.NewValidator(cfsslengine.New(false))
	err := v.Validate(context.Background(), desc, []string{"lone.test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "trust chain")
}
