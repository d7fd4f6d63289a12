package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// sessionTokenBytes yields 86 URL-safe characters, in line with the
// unguessable-token requirement for session identifiers.
const sessionTokenBytes = 64

// NewSessionToken returns a cryptographically random, URL-safe opaque token.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
