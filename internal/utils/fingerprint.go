package utils

import "regexp"

var fingerprintPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// IsValidFingerprint reports whether fp looks like a hex SHA-256 digest.
func IsValidFingerprint(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}
