package twofactor

import (
	"crypto/subtle"
	"strings"

	"github.com/sora-grayscale/splitvault/internal/util"
)

const (
	// backupCodeCount is the number of codes issued when 2FA is enabled.
	backupCodeCount = 10
	// backupCodeLen is the number of alphanumeric characters per code.
	backupCodeLen = 10
)

// generateBackupCodes creates a batch of single-use codes. Characters are
// drawn by rejection sampling (util.RandomChars), so every code is uniform
// over the alphabet.
func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		code, err := util.RandomChars(backupCodeLen)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// formatBackupCode renders a stored code for one-time display.
func formatBackupCode(code string) string {
	if len(code) != backupCodeLen {
		return code
	}
	return code[:5] + "-" + code[5:]
}

// normalizeBackupCode undoes display formatting and user spacing.
func normalizeBackupCode(input string) string {
	input = strings.ToUpper(strings.TrimSpace(input))
	input = strings.ReplaceAll(input, "-", "")
	return strings.ReplaceAll(input, " ", "")
}

// matchBackupCode finds the submitted code in the remaining list using a
// constant-time comparison per candidate. Returns the index and whether a
// match was found.
func matchBackupCode(codes []string, input string) (int, bool) {
	candidate := []byte(normalizeBackupCode(input))
	match := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(code), candidate) == 1 && match < 0 {
			match = i
		}
	}
	return match, match >= 0
}
