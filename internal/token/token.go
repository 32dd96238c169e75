// Package token mints and verifies one-time confirmation tokens. A token is
// an unguessable value bound 1:1 to a single proposal; it carries no
// capability beyond marking that proposal confirmed. Only a hash is stored,
// so the plain token exists exactly once, in the proposal response.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// Issue generates a fresh token and the hash to persist with the proposal.
func Issue() (plain, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, Hash(plain), nil
}

// Hash returns the stored form of a token.
func Hash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Matches compares a presented token against a stored hash in constant time.
func Matches(plain, storedHash string) bool {
	presented := Hash(plain)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
