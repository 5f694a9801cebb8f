package guardrail

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/Laisky/errors/v2"
)

// KeySize is the size of the process-wide guardrail key.
const KeySize = 32

// checksumSize is the number of HMAC bytes appended to every token.
const checksumSize = 4

// ivSize is the AES-CTR IV length embedded at the front of every token.
const ivSize = 16

// Codec produces and reverses anonymization tokens. A token is
// base64url(IV || AES-256-CTR ciphertext || checksum) with padding stripped.
// The IV is derived deterministically from the key, the category and the
// plaintext, so encoding the same value twice yields the same token and
// decoding needs no per-token state.
type Codec struct {
	key [KeySize]byte
}

// NewCodec returns a codec bound to key.
func NewCodec(key [KeySize]byte) *Codec {
	return &Codec{key: key}
}

// ParseKey decodes a hex-encoded 32-byte guardrail key.
func ParseKey(hexKey string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, errors.Wrap(err, "decode guardrail key hex")
	}
	if len(raw) != KeySize {
		return key, errors.Errorf("guardrail key must be %d bytes, got %d", KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// GenerateKey returns a fresh random guardrail key.
func GenerateKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, errors.Wrap(err, "generate guardrail key")
	}
	return key, nil
}

func (c *Codec) deriveIV(category, value string) []byte {
	outer := hmac.New(sha256.New, c.key[:])
	outer.Write([]byte(category))
	inner := hmac.New(sha256.New, outer.Sum(nil))
	inner.Write([]byte(value))
	return inner.Sum(nil)[:ivSize]
}

func (c *Codec) checksum(category, value string) []byte {
	mac := hmac.New(sha256.New, c.key[:])
	mac.Write([]byte(value))
	mac.Write([]byte(category))
	return mac.Sum(nil)[:checksumSize]
}

// Encode returns the token for value under category.
func (c *Codec) Encode(category, value string) string {
	iv := c.deriveIV(category, value)

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		// key length is fixed at construction, NewCipher cannot fail
		panic(err)
	}
	ct := make([]byte, len(value))
	cipher.NewCTR(block, iv).XORKeyStream(ct, []byte(value))

	buf := make([]byte, 0, ivSize+len(ct)+checksumSize)
	buf = append(buf, iv...)
	buf = append(buf, ct...)
	buf = append(buf, c.checksum(category, value)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode reverses Encode. It returns ok=false for tokens this process's key
// did not produce (wrong key, wrong category, or truncated/garbled base64),
// which lets callers pass unrecognized tokens through unchanged.
func (c *Codec) Decode(category, token string) (value string, ok bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < ivSize+checksumSize {
		return "", false
	}

	iv := raw[:ivSize]
	ct := raw[ivSize : len(raw)-checksumSize]
	sum := raw[len(raw)-checksumSize:]

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		panic(err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ct)

	if !hmac.Equal(sum, c.checksum(category, string(plain))) {
		return "", false
	}
	if !hmac.Equal(iv, c.deriveIV(category, string(plain))) {
		return "", false
	}
	return string(plain), true
}
