package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumDeterministic(t *testing.T) {
	payload := []byte(`{"files": []}`)

	first := Sum(payload)
	second := Sum(payload)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // SHA-256 hex
}

func TestSumKnownVector(t *testing.T) {
	// sha256("") is a fixed vector.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Sum(nil))
}

func TestVerify(t *testing.T) {
	payload := []byte("workspace state")

	assert.True(t, Verify(payload, Sum(payload)))
	assert.False(t, Verify(payload, Sum([]byte("tampered"))))
	assert.False(t, Verify(payload, ""))
}

func TestSumDiffersForDifferentPayloads(t *testing.T) {
	assert.NotEqual(t, Sum([]byte("a")), Sum([]byte("b")))
}
