package cfssl

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srl-labs/devca/cert"
)

var testSubject = cert.Subject{
	Country:      "US",
	Organization: "Acme",
	CommonName:   "Acme Root Dev CA",
}

func TestGenerateSelfSignedEncryptsKey(t *testing.T) {
	e := New(false)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "root.key")
	certPath := filepath.Join(dir, "root.crt")

	err := e.GenerateSelfSigned(context.Background(), cert.SelfSignRequest{
		Subject:      testSubject,
		Days:         30,
		KeyAlgorithm: "rsa:2048",
		KeyCipher:    "aes256",
		Password:     "secret",
		KeyPath:      keyPath,
		CertPath:     certPath,
	})
	require.NoError(t, err)

	// the key must only parse with the password
	require.Error(t, e.CheckKey(context.Background(), keyPath, ""))
	require.NoError(t, e.CheckKey(context.Background(), keyPath, "secret"))

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLeafSignRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := New(false)
	dir := t.TempDir()

	rootKey := filepath.Join(dir, "root.key")
	rootCert := filepath.Join(dir, "root.crt")
	require.NoError(t, e.GenerateSelfSigned(ctx, cert.SelfSignRequest{
		Subject:      testSubject,
		Days:         30,
		KeyAlgorithm: "rsa:2048",
		KeyCipher:    "aes256",
		Password:     "secret",
		KeyPath:      rootKey,
		CertPath:     rootCert,
	}))

	leafKey := filepath.Join(dir, "leaf.key")
	leafCSR := filepath.Join(dir, "leaf.csr")
	require.NoError(t, e.GenerateCSR(ctx, cert.CSRRequest{
		Subject:      cert.Subject{Country: "US", Organization: "Acme", CommonName: "a.test"},
		KeyAlgorithm: "rsa:2048",
		KeyPath:      leafKey,
		CSRPath:      leafCSR,
	}))

	leafCert := filepath.Join(dir, "leaf.crt")
	require.NoError(t, e.SignCSR(ctx, cert.SignRequest{
		CSRPath:        leafCSR,
		IssuerCertPath: rootCert,
		IssuerKeyPath:  rootKey,
		IssuerPassword: "secret",
		CertPath:       leafCert,
		SerialPath:     filepath.Join(dir, "serial"),
		Days:           30,
		Hostnames:      []string{"a.test", "b.test"},
	}))

	text, err := e.DumpCertificate(ctx, leafCert, cert.DumpOptions{})
	require.NoError(t, err)
	require.Contains(t, text, "Not After :")
	require.Contains(t, text, "CN = a.test")
	require.Contains(t, text, "DNS:a.test, DNS:b.test")

	// root-signed leaf verifies against a bundle holding the root
	require.NoError(t, e.VerifyChain(ctx, leafCert, rootCert))
	require.Error(t, e.VerifyChain(ctx, leafCert, ""))

	// certificate and key carry the same public key
	certFP, err := e.PublicKeyFingerprint(ctx, leafCert, cert.TargetCert, "")
	require.NoError(t, err)
	keyFP, err := e.PublicKeyFingerprint(ctx, leafKey, cert.TargetKey, "")
	require.NoError(t, err)
	require.Equal(t, certFP, keyFP)
	require.True(t, strings.HasPrefix(certFP, "SHA256="))
}

func TestSignCSRConstrainedCA(t *testing.T) {
	ctx := context.Background()
	e := New(false)
	dir := t.TempDir()

	rootKey := filepath.Join(dir, "root.key")
	rootCert := filepath.Join(dir, "root.crt")
	require.NoError(t, e.GenerateSelfSigned(ctx, cert.SelfSignRequest{
		Subject:      testSubject,
		Days:         30,
		KeyAlgorithm: "rsa:2048",
		KeyCipher:    "aes256",
		Password:     "secret",
		KeyPath:      rootKey,
		CertPath:     rootCert,
	}))

	interKey := filepath.Join(dir, "inter.key")
	interCSR := filepath.Join(dir, "inter.csr")
	require.NoError(t, e.GenerateCSR(ctx, cert.CSRRequest{
		Subject:      cert.Subject{Country: "US", Organization: "Acme", CommonName: "Acme Intermediate Dev CA"},
		KeyAlgorithm: "rsa:2048",
		KeyPath:      interKey,
		CSRPath:      interCSR,
	}))

	interCert := filepath.Join(dir, "inter.crt")
	require.NoError(t, e.SignCSR(ctx, cert.SignRequest{
		CSRPath:        interCSR,
		IssuerCertPath: rootCert,
		IssuerKeyPath:  rootKey,
		IssuerPassword: "secret",
		CertPath:       interCert,
		SerialPath:     filepath.Join(dir, "serial"),
		Days:           30,
		IsCA:           true,
		PermittedDNS:   []string{".test"},
	}))

	c, err := parseCertFile(interCert)
	require.NoError(t, err)
	require.True(t, c.IsCA)
	require.True(t, c.PermittedDNSDomainsCritical)
	require.Equal(t, []string{".test"}, c.PermittedDNSDomains)
	require.True(t, c.MaxPathLenZero)
}

func TestNextSerial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial")

	first, err := nextSerial(path)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := nextSerial(path)
	require.NoError(t, err)

	want := new(big.Int).Add(first, big.NewInt(1))
	require.Zero(t, want.Cmp(second), "serial did not increment: %s -> %s", first.Text(16), second.Text(16))

	// the counter survives in the file
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, second.Text(16), strings.TrimSpace(string(b)))
}

func TestNextSerialMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial")
	require.NoError(t, os.WriteFile(path, []byte("not-hex!"), 0o600))

	_, err := nextSerial(path)
	require.Error(t, err)
}

func TestKeyRequest(t *testing.T) {
	kr, err := keyRequest("rsa:2048")
	require.NoError(t, err)
	require.Equal(t, "rsa", kr.A)
	require.Equal(t, 2048, kr.S)

	_, err = keyRequest("rsa")
	require.Error(t, err)
	_, err = keyRequest("rsa:big")
	require.Error(t, err)
}

func TestPemCipher(t *testing.T) {
	for _, name := range []string{"aes128", "aes192", "aes256", "3des"} {
		_, err := pemCipher(name)
		require.NoError(t, err, name)
	}

	_, err := pemCipher("rot13")
	require.Error(t, err)
}

func TestMissingFilesAreInvocationErrors(t *testing.T) {
	ctx := context.Background()
	e := New(false)
	missing := filepath.Join(t.TempDir(), "missing")

	var inv *cert.EngineInvocationError

	_, err := e.DumpCertificate(ctx, missing+".crt", cert.DumpOptions{})
	require.ErrorAs(t, err, &inv)

	err = e.CheckExpiry(ctx, missing+".crt")
	require.ErrorAs(t, err, &inv)

	err = e.CheckKey(ctx, missing+".key", "")
	require.ErrorAs(t, err, &inv)

	_, err = e.PublicKeyFingerprint(ctx, missing+".crt", cert.TargetCert, "")
	require.ErrorAs(t, err, &inv)
}

func TestDumpOptions(t *testing.T) {
	ctx := context.Background()
	e := New(false)
	dir := t.TempDir()

	certPath := filepath.Join(dir, "root.crt")
	require.NoError(t, e.GenerateSelfSigned(ctx, cert.SelfSignRequest{
		Subject:      testSubject,
		Days:         30,
		KeyAlgorithm: "rsa:2048",
		KeyCipher:    "aes256",
		Password:     "secret",
		KeyPath:      filepath.Join(dir, "root.key"),
		CertPath:     certPath,
	}))

	full, err := e.DumpCertificate(ctx, certPath, cert.DumpOptions{})
	require.NoError(t, err)
	require.Contains(t, full, "Certificate:")

	noHeader, err := e.DumpCertificate(ctx, certPath, cert.DumpOptions{NoHeader: true})
	require.NoError(t, err)
	require.NotContains(t, noHeader, "Certificate:")
	require.Contains(t, noHeader, "Subject:")

	sanOnly, err := e.DumpCertificate(ctx, certPath, cert.DumpOptions{SANOnly: true})
	require.NoError(t, err)
	require.NotContains(t, sanOnly, "Subject:")
}
