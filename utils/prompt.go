package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// StdioPrompter asks for confirmations and passwords on the controlling
// terminal. It satisfies cert.Prompter.
type StdioPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewStdioPrompter returns a prompter bound to stdin/stderr.
// Prompts go to stderr so that command output stays parseable.
func NewStdioPrompter() *StdioPrompter {
	return &StdioPrompter{
		In:  os.Stdin,
		Out: os.Stderr,
	}
}

// Confirm prints msg and reads a yes/no answer. An empty answer resolves to
// defaultYes.
func (p *StdioPrompter) Confirm(msg string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	fmt.Fprintf(p.Out, "%s %s: ", msg, hint)

	input, err := p.buffered().ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read user input: %v", err)
	}

	answer := strings.ToLower(strings.TrimSpace(input))
	if answer == "" {
		return defaultYes, nil
	}

	return answer == "y" || answer == "yes", nil
}

// Password reads a password without terminal echo. When confirmPrompt is not
// empty the password has to be typed twice; mismatching attempts re-prompt.
func (p *StdioPrompter) Password(prompt, confirmPrompt string) (string, error) {
	for {
		pass, err := p.readPassword(prompt)
		if err != nil {
			return "", err
		}

		if confirmPrompt == "" {
			return pass, nil
		}

		again, err := p.readPassword(confirmPrompt)
		if err != nil {
			return "", err
		}

		if pass == again {
			return pass, nil
		}

		fmt.Fprintln(p.Out, "passwords do not match, try again")
	}
}

func (p *StdioPrompter) readPassword(prompt string) (string, error) {
	fmt.Fprintf(p.Out, "%s: ", prompt)

	f, ok := p.In.(*os.File)
	if ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		fmt.Fprintln(p.Out)
		return string(pass), nil
	}

	// not a terminal, e.g. piped input in tests
	line, err := p.buffered().ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// buffered wraps In in a reader that survives across prompts, so input
// typed ahead of a prompt is not lost between calls.
func (p *StdioPrompter) buffered() *bufio.Reader {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	return p.reader
}
