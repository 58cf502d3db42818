// Package util provides utility functions for the SlotPipe application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
// Uses math/rand/v2 for optimal performance with modern best practices.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2 with optimal entropy utilization for non-cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateReplyToken generates a single-use reply token embedded in outbound
// email reply-to addresses. Tokens are lowercase hex so they survive mail
// servers that case-fold the local part.
func GenerateReplyToken() string {
	return GenerateRandomHex(20)
}

// GenerateRecipientID generates a unique recipient ID with "rcp_" prefix.
func GenerateRecipientID() string {
	return GenerateRandomID("rcp_", 24)
}
