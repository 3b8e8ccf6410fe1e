package cert

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// nearExpiryWindow is the remaining validity below which a validated
// certificate triggers a non-fatal warning.
const nearExpiryWindow = 14 * 24 * time.Hour

// Validator runs post-issuance checks against a certificate/key pair.
type Validator struct {
	engine Engine

	// CABundle optionally adds trust anchors (the store's own CAs) to the
	// chain check. A freshly created dev root is typically not yet
	// installed in the system trust store, so without the bundle the chain
	// check would reject every cert this tool issues.
	CABundle string
}

// NewValidator creates a Validator backed by the given engine.
func NewValidator(e Engine) *Validator {
	return &Validator{engine: e}
}

// Validate checks that desc is a usable TLS server certificate for
// hostnames. Checks run in a fixed order and fail on the first violation:
// expiry, key integrity, trust chain, expiration window, name coverage and
// key/certificate pairing.
func (v *Validator) Validate(ctx context.Context, desc *Descriptor, hostnames []string) error {
	if err := v.engine.CheckExpiry(ctx, desc.CertPath); err != nil {
		return err
	}

	if err := v.engine.CheckKey(ctx, desc.KeyPath, desc.Password()); err != nil {
		return fmt.Errorf("private key %s is not valid: %w", desc.KeyPath, err)
	}

	if err := v.engine.VerifyChain(ctx, desc.CertPath, v.CABundle); err != nil {
		return fmt.Errorf("trust chain verification of %s failed: %w", desc.CertPath, err)
	}

	text, err := v.engine.DumpCertificate(ctx, desc.CertPath, DumpOptions{})
	if err != nil {
		return err
	}

	notAfter, err := parseNotAfter(text)
	if err != nil {
		return err
	}
	if time.Now().After(notAfter) {
		return &ExpiredError{NotAfter: notAfter}
	}
	if time.Until(notAfter) < nearExpiryWindow {
		log.Warnf("certificate %s expires %s", desc.CertPath, humanize.Time(notAfter))
	}

	names := parseNames(text)
	var missing []string
	for _, h := range hostnames {
		if !names[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return &MissingHostnamesError{Missing: missing}
	}

	certFP, err := v.engine.PublicKeyFingerprint(ctx, desc.CertPath, TargetCert, "")
	if err != nil {
		return err
	}
	keyFP, err := v.engine.PublicKeyFingerprint(ctx, desc.KeyPath, TargetKey, desc.Password())
	if err != nil {
		return err
	}
	if certFP != keyFP {
		return &KeyMismatchError{CertPath: desc.CertPath, KeyPath: desc.KeyPath}
	}

	return nil
}
