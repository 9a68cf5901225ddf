package ui

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/illarion/credvault/internal/crypto"
)

// PasswordEnv names the variable that supplies the master password
// non-interactively.
const PasswordEnv = "CREDVAULT_PASSWORD"

var ErrPasswordMismatch = errors.New("passwords do not match")

// Prompter asks the user for input. Passwords are read without echo when
// the input is a terminal and as plain lines otherwise, so the CLI can be
// driven from a pipe.
type Prompter struct {
	in  *bufio.Reader
	fd  int
	tty bool
	out io.Writer
}

// NewPrompter reads from in and writes prompts to out
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	fd := int(in.Fd())
	return &Prompter{in: bufio.NewReader(in), fd: fd, tty: term.IsTerminal(fd), out: out}
}

// NewLinePrompter reads everything, passwords included, as lines from r
func NewLinePrompter(r io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(r), fd: -1, out: out}
}

// Password reads a password without echo. The caller clears the result with
// crypto.ClearBytes.
func (p *Prompter) Password(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)

	if p.tty {
		password, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	line, err := p.in.ReadBytes('\n')
	defer crypto.ClearBytes(line)
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	password := make([]byte, len(trimmed))
	copy(password, trimmed)
	return password, nil
}

// PasswordConfirm reads a password twice and fails if the two differ
func (p *Prompter) PasswordConfirm(prompt, confirm string) ([]byte, error) {
	first, err := p.Password(prompt)
	if err != nil {
		return nil, err
	}

	second, err := p.Password(confirm)
	if err != nil {
		crypto.ClearBytes(first)
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		crypto.ClearBytes(first)
		return nil, ErrPasswordMismatch
	}
	return first, nil
}

// Line reads one line of text, without its trailing newline
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm asks a yes/no question; anything but y or yes is no
func (p *Prompter) Confirm(prompt string) (bool, error) {
	answer, err := p.Line(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// PasswordFromEnv returns a copy of CREDVAULT_PASSWORD, or nil if unset
func PasswordFromEnv() []byte {
	password := os.Getenv(PasswordEnv)
	if password == "" {
		return nil
	}
	return []byte(password)
}
