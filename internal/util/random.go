package util

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateStudyID returns a new random UUID for a study.
func GenerateStudyID() string {
	return uuid.NewString()
}

// GenerateSessionID returns a new random UUID for a setup session.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateLockToken returns the owner token written into a distributed lock key.
func GenerateLockToken() string {
	return GenerateRandomID("lk_", 32)
}
