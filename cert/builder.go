package cert

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/srl-labs/devca/utils"
)

// store file suffixes; presence of <name>.crt/.key pairs is the hierarchy's
// on-disk state.
const (
	CertFileSuffix = ".crt"
	KeyFileSuffix  = ".key"
)

const (
	rootCADays         = 9999
	intermediateCADays = 3650
	leafDays           = 825

	// read before prompting for the password of a persistent CA key
	caKeyPasswordEnv = "DEVCA_CA_PK_PASSWORD"
)

// Prompter is the interactive collaborator used before destructive
// overwrites, before auto-creating missing CA levels and for key passwords.
type Prompter interface {
	Confirm(msg string, defaultYes bool) (bool, error)
	Password(prompt, confirmPrompt string) (string, error)
}

// Options configure a Builder.
type Options struct {
	Engine   Engine
	Prompter Prompter
	Policy   Policy

	// StoreDir is the certificate store directory; created with owner-only
	// permissions when missing.
	StoreDir string

	// RootKeyPath persists the root CA key at the given path. When empty
	// the root key lives in the ephemeral workspace and is destroyed at
	// cleanup.
	RootKeyPath string

	// NoConfirm disables safe-mode overwrite and creation confirmations.
	NoConfirm bool
}

// Builder orchestrates root CA creation, intermediate CA creation and leaf
// certificate issuance. Which hierarchy levels exist is decided by probing
// the store directory, never by in-memory flags, so a Builder is safe to
// re-invoke across process runs.
type Builder struct {
	engine      Engine
	prompter    Prompter
	policy      Policy
	storeDir    string
	rootKeyPath string
	noConfirm   bool

	ws         *Workspace
	sharedConf string
	newCAs     []*Descriptor
}

// NewBuilder is the only way to obtain a Builder. It verifies engine
// availability, creates the store directory and writes the authority policy
// config into a fresh workspace, so a returned Builder is always fully
// usable.
func NewBuilder(ctx context.Context, opts Options) (*Builder, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("no certificate engine configured")
	}
	if opts.Prompter == nil {
		return nil, fmt.Errorf("no prompter configured")
	}
	if opts.StoreDir == "" {
		return nil, fmt.Errorf("no store directory configured")
	}

	if err := opts.Engine.Available(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	if err := os.MkdirAll(opts.StoreDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", opts.StoreDir, err)
	}

	ws := NewWorkspace()
	confPath, err := ws.SharedConfigPath()
	if err != nil {
		return nil, err
	}
	if err := WriteConf(confPath, opts.Policy.ConfigSections()); err != nil {
		return nil, fmt.Errorf("failed to write policy config: %w", err)
	}

	return &Builder{
		engine:      opts.Engine,
		prompter:    opts.Prompter,
		policy:      opts.Policy,
		storeDir:    opts.StoreDir,
		rootKeyPath: opts.RootKeyPath,
		noConfirm:   opts.NoConfirm,
		ws:          ws,
		sharedConf:  confPath,
	}, nil
}

// Close removes the ephemeral workspace. The returned *CleanupError is
// marked fatal when an ephemeral root CA key could not be deleted.
func (b *Builder) Close() error {
	return b.ws.Cleanup()
}

// NewCAs lists the CA certificates created during this run, pending
// installation in the operator's trust store.
func (b *Builder) NewCAs() []*Descriptor {
	return b.newCAs
}

// Policy returns the authority policy the builder operates under.
func (b *Builder) Policy() Policy {
	return b.policy
}

// CertPath returns the store path of the certificate named name.
func (b *Builder) CertPath(name string) string {
	return filepath.Join(b.storeDir, name+CertFileSuffix)
}

// KeyPath returns the store path of the key named name.
func (b *Builder) KeyPath(name string) string {
	return filepath.Join(b.storeDir, name+KeyFileSuffix)
}

// CreateRootCA generates the root CA key pair and self-signed certificate.
// The key is encrypted: with an operator-supplied password when a persistent
// key path is configured, otherwise with a random one-run password while the
// key itself lives in the workspace.
func (b *Builder) CreateRootCA(ctx context.Context) (*Descriptor, error) {
	certPath := b.CertPath(b.policy.RootName)

	var keyPath string
	persistent := b.rootKeyPath != ""
	if persistent {
		keyPath = b.rootKeyPath
	} else {
		var err error
		keyPath, err = b.ws.KeyPath(b.policy.RootName)
		if err != nil {
			return nil, err
		}
	}

	overwriteTargets := []string{certPath}
	if persistent {
		overwriteTargets = append(overwriteTargets, keyPath)
	}
	if err := b.confirmOverwrite(overwriteTargets); err != nil {
		return nil, err
	}

	var password string
	if persistent {
		var err error
		password, err = b.prompter.Password(
			fmt.Sprintf("Password for %q key", b.policy.RootName), "Retype password")
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		password, err = randomPassword()
		if err != nil {
			return nil, err
		}
	}

	err := b.engine.GenerateSelfSigned(ctx, SelfSignRequest{
		Subject:      b.policy.Subject(b.policy.RootName),
		Days:         rootCADays,
		KeyAlgorithm: b.policy.KeyAlgorithm,
		KeyCipher:    b.policy.KeyCipher,
		Password:     password,
		KeyPath:      keyPath,
		CertPath:     certPath,
		ConfigPath:   b.sharedConf,
		Extensions:   rootExtSection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create root CA: %w", err)
	}

	log.Infof("created root CA %q", b.policy.RootName)

	desc := NewDescriptorWithPassword(certPath, keyPath, password)
	b.newCAs = append(b.newCAs, desc)

	return desc, nil
}

// IssueSignedCert generates a key pair and CSR for name and signs it with
// the issuer. With hostnames the result is a leaf SSL certificate carrying
// one DNS SAN per hostname; without, it is a new domain-constrained CA link.
func (b *Builder) IssueSignedCert(ctx context.Context, name string, issuer *Descriptor, hostnames []string) (*Descriptor, error) {
	certPath := b.CertPath(name)
	keyPath := b.KeyPath(name)

	if err := b.confirmOverwrite([]string{certPath, keyPath}); err != nil {
		return nil, err
	}

	csrPath, err := b.ws.CSRPath(name)
	if err != nil {
		return nil, err
	}

	err = b.engine.GenerateCSR(ctx, CSRRequest{
		Subject:      b.policy.Subject(name),
		KeyAlgorithm: b.policy.KeyAlgorithm,
		KeyPath:      keyPath,
		CSRPath:      csrPath,
		ConfigPath:   b.sharedConf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CSR for %q: %w", name, err)
	}

	serialPath, err := b.ws.SerialPath()
	if err != nil {
		return nil, err
	}

	req := SignRequest{
		CSRPath:        csrPath,
		IssuerCertPath: issuer.CertPath,
		IssuerKeyPath:  issuer.KeyPath,
		IssuerPassword: issuer.Password(),
		CertPath:       certPath,
		SerialPath:     serialPath,
	}

	isCA := len(hostnames) == 0
	if isCA {
		req.ConfigPath = b.sharedConf
		req.Extensions = intermediateExtSection
		req.Days = intermediateCADays
		req.IsCA = true
		req.PermittedDNS = []string{b.policy.DomainConstraint}
	} else {
		// SAN entries go into a request-specific fragment, never the
		// shared config
		extPath, err := b.ws.ExtFilePath(name)
		if err != nil {
			return nil, err
		}
		if err := WriteConf(extPath, b.policy.LeafExtSections(hostnames)); err != nil {
			return nil, fmt.Errorf("failed to write extension file for %q: %w", name, err)
		}
		req.ConfigPath = extPath
		req.Extensions = serverExtSection
		req.Days = leafDays
		req.Hostnames = hostnames
	}

	if err := b.engine.SignCSR(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to sign certificate %q: %w", name, err)
	}

	desc := NewDescriptor(certPath, keyPath)
	if isCA {
		log.Infof("created CA certificate %q", name)
		b.newCAs = append(b.newCAs, desc)
	} else {
		log.Infof("issued certificate %q for hosts %s", name, strings.Join(hostnames, ", "))
	}

	return desc, nil
}

// IssueSSLCert issues a leaf SSL certificate for hostnames, named after the
// first hostname. When no issuer is given the existing intermediate CA is
// used; missing hierarchy levels are created on the way, each behind an
// operator confirmation.
func (b *Builder) IssueSSLCert(ctx context.Context, hostnames []string, issuer *Descriptor) (*Descriptor, error) {
	if len(hostnames) == 0 {
		return nil, fmt.Errorf("no hostnames given")
	}

	if issuer == nil {
		var err error
		issuer, err = b.resolveIntermediate(ctx)
		if err != nil {
			return nil, err
		}
	}

	return b.IssueSignedCert(ctx, hostnames[0], issuer, hostnames)
}

// resolveIntermediate probes the store for the intermediate CA and
// bootstraps the missing hierarchy levels: no intermediate means the root is
// probed too and created first when absent.
func (b *Builder) resolveIntermediate(ctx context.Context) (*Descriptor, error) {
	inter, err := b.loadCA(b.policy.IntermediateName)
	if err != nil {
		return nil, err
	}
	if inter != nil {
		return inter, nil
	}

	root, err := b.loadCA(b.policy.RootName)
	if err != nil {
		return nil, err
	}
	if root == nil {
		if err := b.confirmCreate(fmt.Sprintf("No root dev CA found in %s. Create %q now?",
			b.storeDir, b.policy.RootName)); err != nil {
			return nil, err
		}
		root, err = b.CreateRootCA(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := b.confirmCreate(fmt.Sprintf("No intermediate dev CA found in %s. Create %q now?",
		b.storeDir, b.policy.IntermediateName)); err != nil {
		return nil, err
	}

	return b.IssueSignedCert(ctx, b.policy.IntermediateName, root, nil)
}

// loadCA probes the store for a CA named name. A nil descriptor without
// error means the CA is absent (or only half-present, which the overwrite
// confirmation deals with later). The password of an encrypted key is
// resolved from the environment or the operator.
func (b *Builder) loadCA(name string) (*Descriptor, error) {
	desc := NewDescriptor(b.CertPath(name), b.KeyPath(name))
	if !desc.Loadable() {
		return nil, nil
	}

	encrypted, err := keyEncrypted(desc.KeyPath)
	if err != nil {
		return nil, err
	}
	if encrypted {
		pw := os.Getenv(caKeyPasswordEnv)
		if pw == "" {
			pw, err = b.prompter.Password(fmt.Sprintf("Password for %q key", name), "")
			if err != nil {
				return nil, err
			}
		}
		desc.password = pw
	}

	return desc, nil
}

// confirmOverwrite enforces safe-mode: existing target files must be
// confirmed before being overwritten.
func (b *Builder) confirmOverwrite(paths []string) error {
	if b.noConfirm {
		return nil
	}

	var existing []string
	for _, p := range paths {
		if utils.FileExists(p) {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	ok, err := b.prompter.Confirm(
		fmt.Sprintf("Overwrite existing %s?", strings.Join(existing, ", ")), false)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOverwriteDeclined
	}

	return nil
}

// confirmCreate asks before auto-creating a missing CA level. A decline
// aborts the issuance with ErrOverwriteDeclined, same as a declined
// overwrite.
func (b *Builder) confirmCreate(msg string) error {
	if b.noConfirm {
		return nil
	}

	ok, err := b.prompter.Confirm(msg, true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOverwriteDeclined
	}

	return nil
}

// keyEncrypted reports whether the PEM-encoded private key at path is
// password protected.
func keyEncrypted(path string) (bool, error) {
	b, err := utils.ReadFileContent(path)
	if err != nil {
		return false, err
	}

	block, _ := pem.Decode(b)
	if block == nil {
		return false, fmt.Errorf("no PEM data in %s", path)
	}

	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return true, nil
	}

	return strings.Contains(block.Headers["Proc-Type"], "ENCRYPTED"), nil
}

// randomPassword returns a random 256-bit password used to encrypt an
// ephemeral root key for the duration of one run.
func randomPassword() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
