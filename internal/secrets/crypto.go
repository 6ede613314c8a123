package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// SecretPrefix marks an encrypted API key in the config file.
	SecretPrefix = "enc:"
	// payloadVersion allows the encryption format to evolve.
	payloadVersion = 1
)

var (
	// ErrInvalidPassword is returned when the provided password cannot decrypt the payload.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidPayload indicates the payload structure is malformed.
	ErrInvalidPayload = errors.New("invalid encrypted payload")
)

// payload is the JSON structure hidden behind SecretPrefix.
type payload struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// IsEncrypted reports whether value carries the encrypted-secret prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, SecretPrefix)
}

// EncryptString encrypts value with AES-256-GCM under a scrypt-derived key and
// returns a config-safe string with SecretPrefix.
func EncryptString(value, password string) (string, error) {
	if value == "" {
		return "", nil
	}

	salt, err := randomBytes(16)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	nonce, err := randomBytes(gcm.NonceSize())
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	raw, err := json.Marshal(payload{
		Version:    payloadVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(value), nil)),
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	return SecretPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptString reverses EncryptString. Values without SecretPrefix are
// returned unchanged.
func DecryptString(value, password string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SecretPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: decode payload: %v", ErrInvalidPayload, err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("%w: parse payload: %v", ErrInvalidPayload, err)
	}
	if p.Version != payloadVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, p.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", ErrInvalidPayload, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(p.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: decode nonce: %v", ErrInvalidPayload, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrInvalidPayload, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce size", ErrInvalidPayload)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return string(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32) // N=32768
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
