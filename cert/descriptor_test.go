package cert

import (
	"context"
	"errors"
	"testing"
)

// countingEngine stubs the engine and counts text dump calls.
type countingEngine struct {
	Engine

	dumps int
	text  string
	err   error
}

func (c *countingEngine) DumpCertificate(_ context.Context, _ string, _ DumpOptions) (string, error) {
	c.dumps++
	return c.text, c.err
}

func TestDescriptorDetailsMemoized(t *testing.T) {
	e := &countingEngine{text: "X509v3 Subject Alternative Name:\n    DNS:a.test\n"}
	d := NewDescriptor("/store/a.test.crt", "/store/a.test.key")

	ctx := context.Background()

	first, err := d.Details(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Details(ctx, e)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("details changed between calls")
	}
	if e.dumps != 1 {
		t.Errorf("engine consulted %d times, want 1", e.dumps)
	}
}

func TestDescriptorDetailsEmptyMemoized(t *testing.T) {
	// a certificate without SAN extension dumps to nothing; the empty
	// result is still a result
	e := &countingEngine{text: ""}
	d := NewDescriptor("/store/nosan.crt", "/store/nosan.key")

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := d.Details(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if e.dumps != 1 {
		t.Errorf("engine consulted %d times, want 1", e.dumps)
	}
}

func TestDescriptorDetailsError(t *testing.T) {
	e := &countingEngine{err: &EngineInvocationError{Cmd: "openssl x509", ExitCode: 1}}
	d := NewDescriptor("/store/broken.crt", "/store/broken.key")

	_, err := d.Details(context.Background(), e)

	var inv *EngineInvocationError
	if !errors.As(err, &inv) {
		t.Fatalf("got %v, want *EngineInvocationError", err)
	}

	// the failure is not memoized
	if _, err := d.Details(context.Background(), e); err == nil {
		t.Error("second call unexpectedly succeeded")
	}
	if e.dumps != 2 {
		t.Errorf("engine consulted %d times, want 2", e.dumps)
	}
}

func TestDescriptorPassword(t *testing.T) {
	d := NewDescriptorWithPassword("/a.crt", "/a.key", "hunter2")
	if d.Password() != "hunter2" {
		t.Errorf("password not carried")
	}

	if NewDescriptor("/a.crt", "/a.key").Password() != "" {
		t.Errorf("unexpected password on plain descriptor")
	}
}
