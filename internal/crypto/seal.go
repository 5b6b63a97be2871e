package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks a value produced by Sealer.Seal.
const SealedPrefix = "sealed:v1:"

const sealInfo = "nuggets archive v1"

var ErrSealed = errors.New("sealed value cannot be opened")

// Sealer encrypts short values for storage with XChaCha20-Poly1305 under a
// key derived from a configured secret.
type Sealer struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewSealer derives a 256-bit key from secret with HKDF-SHA256.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, errors.New("seal secret must be at least 16 bytes")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to aad and returns a prefixed base64 string.
func (s *Sealer) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, plaintext, aad)
	return SealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. The aad must match the value used when sealing.
func (s *Sealer) Open(sealed string, aad []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrSealed
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return nil, ErrSealed
	}
	n := s.aead.NonceSize()
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], aad)
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, SealedPrefix)
}
