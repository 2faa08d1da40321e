package worldstate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is the hex SHA-256 fingerprint of a canonicalized document.
type Digest string

// String returns the hex form of the digest.
func (d Digest) String() string {
	return string(d)
}

// Hash canonicalizes v and digests its canonical encoding. The result does
// not depend on map iteration or key insertion order.
func Hash(v any) (Digest, error) {
	cv, err := Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize document: %w", err)
	}
	return cv.Digest(), nil
}

// Digest fingerprints an already canonical value.
func (v Value) Digest() Digest {
	sum := sha256.Sum256([]byte(v.String()))
	return Digest(hex.EncodeToString(sum[:]))
}
