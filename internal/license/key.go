package license

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

const TokenPrefix = "AS-"

// NewToken returns a short, human-shareable token such as
// AS-7QKD-M2XA-PL4C-9TZE.
func NewToken() (string, error) {
	// 10 bytes => 16 base32 chars (no padding)
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)

	parts := make([]string, 0, 4)
	for i := 0; i < len(s); i += 4 {
		parts = append(parts, s[i:min(i+4, len(s))])
	}
	return TokenPrefix + strings.Join(parts, "-"), nil
}

// Normalize trims whitespace and upper-cases a user-entered token.
func Normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
