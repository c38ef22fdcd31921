package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"github.com/Bhuvangs04/Freelancer-hub-load-balancer/internal/errors"
)

// AffinityCodec performs keyed, reversible encoding of a backend identity
// into an opaque cookie-safe token. The key is derived once from the
// configured secret and fixed for the process lifetime, so tokens do not
// survive a restart. Each token carries its own random nonce prefixed to
// the AES-GCM ciphertext.
type AffinityCodec struct {
	aead cipher.AEAD
}

// NewAffinityCodec derives the token key from the configured secret.
// An empty secret is a fatal configuration error; no request may be
// served without key material.
func NewAffinityCodec(secret string) (*AffinityCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidSecret, "affinity_codec",
			"affinity secret is empty")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrCodeInvalidSecret, "affinity_codec",
			"failed to initialize cipher", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrCodeInvalidSecret, "affinity_codec",
			"failed to initialize GCM mode", err)
	}

	return &AffinityCodec{aead: aead}, nil
}

// Encode produces an opaque affinity token for a backend identity.
func (c *AffinityCodec) Encode(identity string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.NewErrorWithCause(errors.ErrCodeTokenDecode, "affinity_codec",
			"failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(identity), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode recovers a backend identity from a token. Malformed, truncated
// or tampered input yields ok=false; invalid tokens are equivalent to no
// affinity and are never surfaced to the client.
func (c *AffinityCodec) Decode(token string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", false
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}
