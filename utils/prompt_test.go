package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
	}{
		{
			name:  "yes short",
			input: "y\n",
			want:  true,
		},
		{
			name:  "yes long mixed case",
			input: "YES\n",
			want:  true,
		},
		{
			name:  "no",
			input: "n\n",
			want:  false,
		},
		{
			name:       "empty takes default yes",
			input:      "\n",
			defaultYes: true,
			want:       true,
		},
		{
			name:  "empty takes default no",
			input: "\n",
			want:  false,
		},
		{
			name:  "garbage is no",
			input: "maybe\n",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &StdioPrompter{In: strings.NewReader(tt.input), Out: &out}

			got, err := p.Confirm("proceed?", tt.defaultYes)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "proceed?") {
				t.Errorf("prompt not printed, got %q", out.String())
			}
		})
	}
}

func TestConfirmConsecutiveAnswers(t *testing.T) {
	// two answers typed ahead must serve two prompts
	var out bytes.Buffer
	p := &StdioPrompter{In: strings.NewReader("y\nn\n"), Out: &out}

	first, err := p.Confirm("first?", false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Confirm("second?", true)
	if err != nil {
		t.Fatal(err)
	}

	if !first || second {
		t.Errorf("got %v/%v, want true/false", first, second)
	}
}

func TestPasswordNoConfirm(t *testing.T) {
	var out bytes.Buffer
	p := &StdioPrompter{In: strings.NewReader("hunter2\n"), Out: &out}

	pass, err := p.Password("Password", "")
	if err != nil {
		t.Fatal(err)
	}
	if pass != "hunter2" {
		t.Errorf("got %q, want %q", pass, "hunter2")
	}
}

func TestPasswordRetypeMismatch(t *testing.T) {
	// first pair mismatches, the second pair agrees
	var out bytes.Buffer
	p := &StdioPrompter{In: strings.NewReader("one\ntwo\nsame\nsame\n"), Out: &out}

	pass, err := p.Password("Password", "Retype password")
	if err != nil {
		t.Fatal(err)
	}
	if pass != "same" {
		t.Errorf("got %q, want %q", pass, "same")
	}
	if !strings.Contains(out.String(), "do not match") {
		t.Errorf("mismatch notice not printed, got %q", out.String())
	}
}
