package secrets

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	digestScheme  = "scrypt"
	digestKeyLen  = 32
	digestSaltLen = 16
)

// ErrMalformedDigest is returned when a stored password digest cannot be parsed.
var ErrMalformedDigest = errors.New("malformed password digest")

// PasswordHasher produces salted scrypt digests of account passwords.
// Digests embed their parameters, so changing N/R/P later does not
// invalidate digests already stored.
type PasswordHasher struct {
	N int
	R int
	P int
}

// DefaultHasher uses the same cost as the API key encryption.
var DefaultHasher = PasswordHasher{N: 1 << 15, R: 8, P: 1}

// Hash returns "scrypt$N$r$p$salt$key" for password with a random salt.
func (h PasswordHasher) Hash(password string) (string, error) {
	salt, err := randomBytes(digestSaltLen)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return h.hashWithSalt(password, salt)
}

func (h PasswordHasher) hashWithSalt(password string, salt []byte) (string, error) {
	key, err := scrypt.Key([]byte(password), salt, h.N, h.R, h.P, digestKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	return strings.Join([]string{
		digestScheme,
		strconv.Itoa(h.N),
		strconv.Itoa(h.R),
		strconv.Itoa(h.P),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$"), nil
}

// VerifyPassword recomputes the digest of password with the parameters and
// salt stored in digest and compares in constant time.
func VerifyPassword(digest, password string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != digestScheme {
		return false, ErrMalformedDigest
	}

	var params [3]int
	for i := range params {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil || v <= 0 {
			return false, ErrMalformedDigest
		}
		params[i] = v
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedDigest
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedDigest
	}

	got, err := scrypt.Key([]byte(password), salt, params[0], params[1], params[2], len(want))
	if err != nil {
		return false, fmt.Errorf("derive key: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
