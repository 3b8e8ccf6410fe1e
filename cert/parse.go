package cert

import (
	"regexp"
	"strings"
	"time"
)

// openssl-style validity timestamp, e.g. "Jun  4 11:04:38 2035 GMT"
const validityTimeLayout = "Jan _2 15:04:05 2006 MST"

var (
	notAfterRe  = regexp.MustCompile(`Not After *: *([^\n]+)`)
	subjectCNRe = regexp.MustCompile(`Subject:[^\n]*?CN *= *([^,/\n]+)`)
	dnsNameRe   = regexp.MustCompile(`DNS:([^,\s]+)`)
)

// parseNotAfter extracts the "Not After" timestamp from the certificate
// text dump.
func parseNotAfter(text string) (time.Time, error) {
	m := notAfterRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, &ParseError{Pattern: "Not After", Text: text}
	}

	t, err := time.Parse(validityTimeLayout, strings.TrimSpace(m[1]))
	if err != nil {
		return time.Time{}, &ParseError{Pattern: "Not After", Text: text}
	}

	return t, nil
}

// parseNames collects the Common Name of the subject line and every DNS
// entry of the Subject Alternative Name extension.
func parseNames(text string) map[string]bool {
	names := map[string]bool{}

	if m := subjectCNRe.FindStringSubmatch(text); m != nil {
		names[strings.TrimSpace(m[1])] = true
	}

	for _, m := range dnsNameRe.FindAllStringSubmatch(text, -1) {
		names[m[1]] = true
	}

	return names
}
