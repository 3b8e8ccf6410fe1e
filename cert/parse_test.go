package cert

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleDump = `Certificate:
    Data:
        Serial Number: 1a2b
        Issuer: C = US, O = Acme, CN = Acme Intermediate Dev CA
        Validity
            Not Before: Jun  4 11:04:38 2024 GMT
            Not After : Jun  4 11:04:38 2035 GMT
        Subject: C = US, O = Acme, CN = a.test
            X509v3 Subject Alternative Name:
                DNS:a.test, DNS:b.test
`

func TestParseNotAfter(t *testing.T) {
	got, err := parseNotAfter(sampleDump)
	if err != nil {
		t.Fatalf("parseNotAfter failed: %v", err)
	}

	want := time.Date(2035, time.June, 4, 11, 4, 38, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNotAfterMissing(t *testing.T) {
	_, err := parseNotAfter("Subject: CN = a.test\n")

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *ParseError", err)
	}
}

func TestParseNotAfterMalformed(t *testing.T) {
	_, err := parseNotAfter("Not After : not a timestamp\n")

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *ParseError", err)
	}
}

func TestParseNames(t *testing.T) {
	got := parseNames(sampleDump)

	want := map[string]bool{
		"a.test": true,
		"b.test": true,
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("unexpected name set:\n%s", d)
	}
}

func TestParseNamesCNOnly(t *testing.T) {
	got := parseNames("        Subject: C = US, O = Acme, CN = plain.test\n")

	if !got["plain.test"] {
		t.Errorf("CN not extracted, got %v", got)
	}
}
