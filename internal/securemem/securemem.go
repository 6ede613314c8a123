// Package securemem keeps backend API keys in memguard-protected memory so
// they do not sit in the regular heap, core dumps or swap.
package securemem

import (
	"crypto/subtle"
	"strings"

	"github.com/awnumar/memguard"
)

// String is a secret held in a memguard locked buffer.
type String struct {
	buf *memguard.LockedBuffer
}

// NewString moves plaintext into locked memory.
func NewString(plaintext string) *String {
	return &String{buf: memguard.NewBufferFromBytes([]byte(plaintext))}
}

// NewStrings wraps every non-blank value, trimming surrounding whitespace.
func NewStrings(values []string) []*String {
	out := make([]*String, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, NewString(v))
	}
	return out
}

func (s *String) alive() bool {
	return s != nil && s.buf != nil && s.buf.IsAlive()
}

// WithValue runs fn with the plaintext. fn must not retain it.
func (s *String) WithValue(fn func(string)) {
	if !s.alive() {
		fn("")
		return
	}
	fn(string(s.buf.Bytes()))
}

// Equal compares against plaintext in constant time.
func (s *String) Equal(other string) bool {
	if !s.alive() {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// IsEmpty is true for destroyed or zero-length secrets.
func (s *String) IsEmpty() bool {
	return !s.alive() || s.buf.Size() == 0
}

// Destroy wipes the secret. Safe to call more than once.
func (s *String) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	s.buf.Destroy()
	s.buf = nil
}

// DestroyAll wipes every secret in list.
func DestroyAll(list []*String) {
	for _, s := range list {
		s.Destroy()
	}
}

// Purge wipes all memguard buffers; call once on process exit.
func Purge() {
	memguard.Purge()
}
