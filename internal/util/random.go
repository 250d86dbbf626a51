package util

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// allowedRandomChars excludes visually ambiguous characters (0/O, 1/I, U/V).
var allowedRandomChars = []rune("23456789ABCDEFGHJKLMNPQRSTVWXYZ")

// RandomChars returns n characters drawn uniformly from allowedRandomChars.
// Bytes are drawn by rejection sampling: values outside the largest multiple
// of the alphabet size are discarded rather than reduced modulo, which would
// bias the low characters.
func RandomChars(n int) (string, error) {
	alphabet := allowedRandomChars
	// Largest multiple of len(alphabet) that fits in a byte.
	limit := 256 - 256%len(alphabet)

	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, 1)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating random char: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		sb.WriteRune(alphabet[int(buf[0])%len(alphabet)])
	}
	return sb.String(), nil
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
