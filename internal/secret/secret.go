// Package secret wraps password and key material in buffers that are
// explicitly zeroed on release, per spec's "Password handling" design
// note: avoid letting Go's garbage-collected string pool hold key
// bytes longer than necessary. Grounded on the teacher's
// core/crypto.go SecureZero/ConstantTimeCompare/GenerateSecureRandom
// helpers, rebuilt on crypto/subtle and crypto/rand instead of the
// teacher's hand-rolled constant-time compare.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Secret holds sensitive byte material (passwords, derived keys, IVs)
// that must be wiped before the backing array is released to the
// garbage collector.
type Secret struct {
	data []byte
}

// New copies p into a new Secret. The caller still owns p and is
// responsible for zeroing it if it came from an untrusted source
// (e.g. a []byte read from a terminal).
func New(p []byte) *Secret {
	cp := make([]byte, len(p))
	copy(cp, p)
	return &Secret{data: cp}
}

// FromString copies s's bytes into a new Secret. Go strings are
// immutable and cannot be zeroed, so callers that read a password
// into a string should convert to Secret as early as possible and
// avoid keeping the string alive.
func FromString(s string) *Secret {
	return New([]byte(s))
}

// Bytes returns the secret's current byte contents. The returned
// slice aliases the Secret's storage; do not retain it past Zero.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.data
}

// Len returns the number of bytes held.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// Zero overwrites the secret's backing array with zero bytes. Safe to
// call more than once and on a nil Secret.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	Wipe(s.data)
}

// Equal performs a constant-time comparison of two secrets.
func (s *Secret) Equal(other *Secret) bool {
	if s.Len() != other.Len() {
		return false
	}
	return subtle.ConstantTimeCompare(s.Bytes(), other.Bytes()) == 1
}

// Wipe overwrites b with zero bytes in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Random returns n cryptographically random bytes, used for salts,
// nonces, and IVs.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("secret: generate random bytes: %w", err)
	}
	return b, nil
}
