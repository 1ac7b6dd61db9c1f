package engine

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// passwordEntropyBytes is the amount of cryptographic randomness behind each
// generated server password.
const passwordEntropyBytes = 32

// generatePassword returns a fresh Basic-Auth password for one engine
// instance. Credentials are per-instance values, never process-wide.
func generatePassword() (string, error) {
	buf := make([]byte, passwordEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
