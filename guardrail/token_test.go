package guardrail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() [KeySize]byte {
	var key [KeySize]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	return key
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(testKey())

	for _, tc := range []struct{ category, value string }{
		{"SSN", "123-45-6789"},
		{"IP", "203.0.113.7"},
		{"PHONE", "212-555-0187"},
		{"APIKEY", "sk-abc123def456ghi789"},
		{"JWT", strings.Repeat("x", 500)},
	} {
		token := codec.Encode(tc.category, tc.value)
		assert.NotContains(t, token, "=", "padding must be stripped")
		assert.GreaterOrEqual(t, len(token), 28)

		got, ok := codec.Decode(tc.category, token)
		require.True(t, ok, "category %s", tc.category)
		assert.Equal(t, tc.value, got)
	}
}

func TestCodecDeterministic(t *testing.T) {
	codec := NewCodec(testKey())
	assert.Equal(t, codec.Encode("SSN", "123-45-6789"), codec.Encode("SSN", "123-45-6789"))
	assert.NotEqual(t, codec.Encode("SSN", "123-45-6789"), codec.Encode("PHONE", "123-45-6789"))
}

func TestCodecRejectsWrongCategory(t *testing.T) {
	codec := NewCodec(testKey())
	token := codec.Encode("SSN", "123-45-6789")
	_, ok := codec.Decode("PHONE", token)
	assert.False(t, ok)
}

func TestCodecRejectsWrongKey(t *testing.T) {
	token := NewCodec(testKey()).Encode("SSN", "123-45-6789")

	other := testKey()
	other[0] ^= 0xff
	_, ok := NewCodec(other).Decode("SSN", token)
	assert.False(t, ok)
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec := NewCodec(testKey())
	for _, token := range []string{"", "not-base64!!", "c2hvcnQ", codec.Encode("SSN", "123-45-6789")[:20]} {
		_, ok := codec.Decode("SSN", token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("zz")
	assert.Error(t, err)

	_, err = ParseKey("00112233")
	assert.Error(t, err, "short keys rejected")

	key, err := ParseKey(strings.Repeat("ab", KeySize))
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), key[0])
}
