package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/codefionn/chatd/internal/config"
	"github.com/codefionn/chatd/internal/secrets"
)

const (
	secretsPasswordEnv  = "CHATD_SECRETS_PASSWORD"
	maxPasswordAttempts = 3
)

// apiKeys returns the configured API keys in plaintext together with the
// secrets password that unlocked them, so reloads can decrypt again.
func apiKeys(cfg *config.Config) ([]string, string, error) {
	if !cfg.HasEncryptedKeys() {
		keys, err := cfg.DecryptAPIKeys("")
		return keys, "", err
	}

	if pw := os.Getenv(secretsPasswordEnv); pw != "" {
		keys, err := cfg.DecryptAPIKeys(pw)
		if err != nil {
			return nil, "", fmt.Errorf("%s does not unlock the API keys: %w", secretsPasswordEnv, err)
		}
		return keys, pw, nil
	}

	for attempt := 0; attempt < maxPasswordAttempts; attempt++ {
		pw, err := promptForPassword("Enter encryption password: ")
		if err != nil {
			return nil, "", err
		}
		keys, err := cfg.DecryptAPIKeys(pw)
		if errors.Is(err, secrets.ErrInvalidPassword) {
			fmt.Fprintln(os.Stderr, "Invalid password, try again.")
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return keys, pw, nil
	}
	return nil, "", errors.New("too many invalid password attempts")
}

func promptForPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
