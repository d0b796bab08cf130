// Package token generates the unguessable per-recipient identifiers embedded
// in tracking URLs.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

// Size is the number of random bytes per token: 16 bytes = 128 bits of
// entropy, enough that collisions and guessing are both negligible.
const Size = 16

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22}$`)

// New returns a fresh tracking token: 16 bytes from crypto/rand,
// base64url-encoded without padding (22 characters, URL-safe). Tokens are
// deliberately NOT derived from campaign or user IDs so that knowing one
// recipient's token reveals nothing about any other.
func New() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tracking token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Valid reports whether s has the shape of a tracking token. It is used only
// to short-circuit obviously malformed input; it says nothing about whether
// the token exists.
func Valid(s string) bool {
	return tokenPattern.MatchString(s)
}
