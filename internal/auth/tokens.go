package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewToken returns a 32-byte URL-safe random token for password-reset
// and email-verification links.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
