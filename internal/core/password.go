package core

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"syscall"

	"github.com/illarion/cipherstore/internal/crypto"
	"golang.org/x/term"
)

// stdin is shared so that consecutive reads from a pipe see every line
var stdin = bufio.NewReader(os.Stdin)

// ReadPassword reads a passphrase from the terminal without echoing. When
// stdin is not a terminal the first line of input is used instead.
func ReadPassword(prompt string) ([]byte, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func ReadPasswordConfirm() ([]byte, error) {
	password1, err := ReadPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password1)

	password2, err := ReadPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		return nil, fmt.Errorf("passwords do not match")
	}

	// Return a copy of the password
	result := make([]byte, len(password1))
	copy(result, password1)
	return result, nil
}

// PasswordEnv names the environment variable holding the store passphrase
const PasswordEnv = "CIPHERSTORE_PASSWORD"

// GetPasswordFromEnv reads the passphrase from the PasswordEnv environment variable
func GetPasswordFromEnv() []byte {
	password := os.Getenv(PasswordEnv)
	if password == "" {
		return nil
	}
	// Return a copy to avoid issues when clearing the bytes
	result := make([]byte, len(password))
	copy(result, []byte(password))
	return result
}