package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret hashes the raw secret using the same strategy as key creation.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SecretHint returns the display suffix stored alongside the hash.
func SecretHint(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return secret[len(secret)-4:]
}

// VerifySecret compares a presented secret against the stored hash in
// constant time.
func VerifySecret(storedHash, presented string) bool {
	candidate := HashSecret(presented)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}
