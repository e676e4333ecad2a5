package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomAlphaNumeric generates a random alphanumeric string of the
// specified length. Not for cryptographic use.
func GenerateRandomAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}

	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.Intn(len(chars))])
	}

	return builder.String()
}

// GenerateVerifyToken generates a development webhook verify token. Real
// deployments configure WA_VERIFY_TOKEN instead.
func GenerateVerifyToken() string {
	return GenerateRandomAlphaNumeric(24)
}
