package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a cryptographically secure random string of the
// given length drawn from [a-zA-Z0-9]. A 32-character string carries just
// under 191 bits of entropy.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(randomCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform RNG is broken;
			// nothing sensible to fall back to.
			panic(err)
		}
		b[i] = randomCharset[n.Int64()]
	}
	return string(b)
}

// NormalizeEmail lowercases and trims an email address. Callers must apply
// this before any username lookup so case or whitespace differences in
// transit never cause false negatives.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailLocalPart returns the part of an email address before the '@',
// lowercased. Returns the whole (lowercased) input when no '@' is present.
func EmailLocalPart(email string) string {
	email = NormalizeEmail(email)
	if at := strings.Index(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}
