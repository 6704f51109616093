// Package license implements the device-bound activation key scheme. The
// whole scheme is a pure function of stable host attributes; there are no
// network calls and it is not a security boundary.
package license

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
)

const (
	keyDigits  = 16
	keyModulus = 10_000_000_000_000_000 // 10^16
	keyOffset  = 7_777_777
	keyFactor  = 3
)

// Fingerprint returns the hex SHA-256 over the host's stable attributes.
// The same machine always produces the same fingerprint.
func Fingerprint() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return FingerprintFor(host, runtime.GOOS, runtime.GOARCH)
}

// FingerprintFor is the deterministic core of Fingerprint, split out so the
// transform can be exercised against fixed inputs.
func FingerprintFor(hostname, goos, goarch string) string {
	sum := sha256.Sum256([]byte(hostname + "|" + goos + "|" + goarch))
	return hex.EncodeToString(sum[:])
}

// KeyFor derives the 16-digit activation key for a fingerprint. The first
// 8 fingerprint bytes are read as a big-endian integer and pushed through a
// fixed arithmetic transform, then formatted in groups of four.
func KeyFor(fingerprint string) (string, error) {
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) < 8 {
		return "", fmt.Errorf("malformed fingerprint %q", fingerprint)
	}
	n := binary.BigEndian.Uint64(raw[:8])
	key := (n%keyModulus*keyFactor + keyOffset) % keyModulus
	digits := fmt.Sprintf("%0*d", keyDigits, key)
	return digits[0:4] + "-" + digits[4:8] + "-" + digits[8:12] + "-" + digits[12:16], nil
}

// Validate reports whether the presented key activates the given
// fingerprint. Separators and surrounding whitespace are ignored.
func Validate(fingerprint, key string) bool {
	want, err := KeyFor(fingerprint)
	if err != nil {
		return false
	}
	return Normalize(key) == Normalize(want)
}

// Normalize strips separators and whitespace from a key so that
// "1234-5678-9012-3456" and "1234567890123456" compare equal.
func Normalize(key string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(key) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
