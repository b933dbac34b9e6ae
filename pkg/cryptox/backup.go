package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Backup codes are shown to a user exactly once, so the alphabet avoids
// lowercase to keep them easy to transcribe.
const backupCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const backupCodeGroupLen = 5

// GenerateBackupCode returns a human-readable single-use recovery code of the
// form "AB3XZ-9KQWE": two 5-character alphanumeric groups joined by a hyphen.
func GenerateBackupCode() (string, error) {
	groups := make([]string, 2)
	for i := range groups {
		g, err := randomGroup(backupCodeGroupLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		groups[i] = g
	}
	return strings.Join(groups, "-"), nil
}

func randomGroup(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeCharset))))
		if err != nil {
			return "", err
		}
		out[i] = backupCodeCharset[n.Int64()]
	}
	return string(out), nil
}
