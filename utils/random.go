package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns an uppercase hex code of n characters. Used for seat
// numbers on generated tickets.
func GenerateCode(n int) string {
	byt := make([]byte, (n+1)/2)
	_, _ = rand.Read(byt)
	return strings.ToUpper(hex.EncodeToString(byt))[:n]
}
