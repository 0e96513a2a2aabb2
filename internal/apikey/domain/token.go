package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

const (
	TokenPrefix = "egp"

	EnvironmentLive = "live"
	EnvironmentTest = "test"
)

// Token is the parsed form of a presented credential. It is never persisted.
type Token struct {
	Environment string
	KeyID       string
	Secret      string
}

// Grammar: egp_{live|test}_{keyId 12-128}.{secret 24-256}, charset [A-Za-z0-9_-].
var tokenPattern = regexp.MustCompile(`^egp_(live|test)_([A-Za-z0-9_\-]{12,128})\.([A-Za-z0-9_\-]{24,256})$`)

// ParseToken parses a raw credential string. Any deviation from the grammar
// is a parse failure; there is no partial result.
func ParseToken(raw string) (Token, error) {
	m := tokenPattern.FindStringSubmatch(raw)
	if m == nil {
		return Token{}, ErrMalformedToken
	}
	return Token{Environment: m[1], KeyID: m[2], Secret: m[3]}, nil
}

// EncodeToken renders the wire form of a credential.
func EncodeToken(environment, keyID, secret string) string {
	return fmt.Sprintf("%s_%s_%s.%s", TokenPrefix, environment, keyID, secret)
}

// GenerateSecret returns a fresh URL-safe secret within the grammar's
// 24-256 character range.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
