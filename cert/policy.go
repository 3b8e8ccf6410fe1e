package cert

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/srl-labs/devca/utils"
)

const (
	defaultCountry          = "US"
	defaultKeyAlgorithm     = "rsa:2048"
	defaultKeyCipher        = "aes256"
	defaultDomainConstraint = ".test"
)

// Policy is the authority policy of a developer CA hierarchy. It is derived
// from the organization name and immutable after construction. The domain
// constraint restricts the intermediate CA, and only the intermediate, to
// issuing names under a fixed suffix.
type Policy struct {
	Organization     string
	Country          string
	KeyAlgorithm     string
	KeyCipher        string
	RootName         string
	IntermediateName string
	DomainConstraint string
}

// PolicyFile is the YAML shape of an optional policy config file. Empty
// fields fall back to the built-in defaults.
type PolicyFile struct {
	Organization     string `yaml:"organization,omitempty"`
	Country          string `yaml:"country,omitempty"`
	KeyAlgorithm     string `yaml:"key-algorithm,omitempty"`
	KeyCipher        string `yaml:"key-cipher,omitempty"`
	DomainConstraint string `yaml:"domain-constraint,omitempty"`
}

// NewPolicy derives a Policy from the organization name.
func NewPolicy(org string) Policy {
	return Policy{
		Organization:     org,
		Country:          defaultCountry,
		KeyAlgorithm:     defaultKeyAlgorithm,
		KeyCipher:        defaultKeyCipher,
		RootName:         org + " Root Dev CA",
		IntermediateName: org + " Intermediate Dev CA",
		DomainConstraint: defaultDomainConstraint,
	}
}

// LoadPolicy builds a Policy from a YAML config file, filling unset fields
// with the defaults NewPolicy would use.
func LoadPolicy(path string) (Policy, error) {
	b, err := utils.ReadFileContent(path)
	if err != nil {
		return Policy{}, err
	}

	var pf PolicyFile
	if err := yaml.UnmarshalStrict(b, &pf); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if pf.Organization == "" {
		return Policy{}, fmt.Errorf("policy file %s does not set organization", path)
	}

	p := NewPolicy(pf.Organization)
	if pf.Country != "" {
		p.Country = pf.Country
	}
	if pf.KeyAlgorithm != "" {
		p.KeyAlgorithm = pf.KeyAlgorithm
	}
	if pf.KeyCipher != "" {
		p.KeyCipher = pf.KeyCipher
	}
	if pf.DomainConstraint != "" {
		p.DomainConstraint = pf.DomainConstraint
	}

	return p, nil
}

// Subject returns the distinguished name for a certificate with the given
// common name under this policy.
func (p Policy) Subject(commonName string) Subject {
	return Subject{
		Country:      p.Country,
		Organization: p.Organization,
		CommonName:   commonName,
	}
}

// extension section names within the shared config
const (
	rootExtSection         = "root_ca_ext"
	intermediateExtSection = "intermediate_ca_ext"
	serverExtSection       = "server_ext"
)

// ConfigSections renders the policy into the section list of the shared
// engine config: request defaults, the two CA distinguished names and the
// three extension sets.
func (p Policy) ConfigSections() []Section {
	return []Section{
		{
			Name: "req",
			Values: []KV{
				{"prompt", "no"},
				{"string_mask", "utf8only"},
				{"distinguished_name", "root_dn"},
			},
		},
		{
			Name: "root_dn",
			Values: []KV{
				{"C", p.Country},
				{"O", p.Organization},
				{"CN", p.RootName},
			},
		},
		{
			Name: "intermediate_dn",
			Values: []KV{
				{"C", p.Country},
				{"O", p.Organization},
				{"CN", p.IntermediateName},
			},
		},
		{
			Name: rootExtSection,
			Values: []KV{
				{"basicConstraints", "critical, CA:TRUE"},
				{"keyUsage", "critical, digitalSignature, cRLSign, keyCertSign"},
				{"extendedKeyUsage", "serverAuth, clientAuth"},
				{"subjectKeyIdentifier", "hash"},
			},
		},
		{
			Name: intermediateExtSection,
			Values: []KV{
				{"basicConstraints", "critical, CA:TRUE, pathlen:0"},
				{"keyUsage", "critical, digitalSignature, cRLSign, keyCertSign"},
				{"extendedKeyUsage", "serverAuth, clientAuth"},
				{"subjectKeyIdentifier", "hash"},
				{"authorityKeyIdentifier", "keyid:always"},
				{"nameConstraints", "critical, permitted;DNS:" + p.DomainConstraint},
			},
		},
		{
			Name: serverExtSection,
			Values: []KV{
				{"basicConstraints", "CA:FALSE"},
				{"keyUsage", "critical, digitalSignature, keyEncipherment"},
				{"extendedKeyUsage", "serverAuth"},
				{"subjectKeyIdentifier", "hash"},
				{"authorityKeyIdentifier", "keyid,issuer"},
			},
		},
	}
}

// LeafExtSections renders the request-specific extension fragment for a leaf
// certificate: the shared server extensions plus a SAN entry per hostname.
// Kept out of the shared config to avoid cross-contamination between
// issuances.
func (p Policy) LeafExtSections(hostnames []string) []Section {
	sans := make([]string, 0, len(hostnames))
	for _, h := range hostnames {
		sans = append(sans, "DNS:"+h)
	}

	var values []KV
	for _, s := range p.ConfigSections() {
		if s.Name == serverExtSection {
			values = append(values, s.Values...)
		}
	}
	values = append(values, KV{"subjectAltName", strings.Join(sans, ", ")})

	return []Section{{Name: serverExtSection, Values: values}}
}
