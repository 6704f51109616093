package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStable(t *testing.T) {
	a := FingerprintFor("pos-terminal-01", "linux", "amd64")
	b := FingerprintFor("pos-terminal-01", "linux", "amd64")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other := FingerprintFor("pos-terminal-02", "linux", "amd64")
	assert.NotEqual(t, a, other)
}

func TestKeyForProducesFormattedSixteenDigits(t *testing.T) {
	fp := FingerprintFor("pos-terminal-01", "linux", "amd64")
	key, err := KeyFor(fp)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}-\d{4}-\d{4}-\d{4}$`, key)

	// Deterministic: same fingerprint, same key.
	again, err := KeyFor(fp)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestKeyForRejectsMalformedFingerprint(t *testing.T) {
	_, err := KeyFor("not-hex")
	assert.Error(t, err)
	_, err = KeyFor("abcd")
	assert.Error(t, err)
}

func TestValidateIgnoresSeparators(t *testing.T) {
	fp := FingerprintFor("pos-terminal-01", "linux", "amd64")
	key, err := KeyFor(fp)
	require.NoError(t, err)

	assert.True(t, Validate(fp, key))
	assert.True(t, Validate(fp, Normalize(key)))
	assert.True(t, Validate(fp, "  "+key+"  "))
	assert.False(t, Validate(fp, "0000-0000-0000-0000"))
}

func TestValidateRejectsKeyForOtherDevice(t *testing.T) {
	fpA := FingerprintFor("pos-terminal-01", "linux", "amd64")
	fpB := FingerprintFor("pos-terminal-01", "windows", "amd64")
	keyA, err := KeyFor(fpA)
	require.NoError(t, err)
	assert.False(t, Validate(fpB, keyA))
}
