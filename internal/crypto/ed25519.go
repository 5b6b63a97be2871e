package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid Ed25519 public key")
	ErrInvalidPrivateKey = errors.New("invalid Ed25519 private key")
)

// ValidatePublicKey checks that a base64-encoded string is an Ed25519 public
// key that decodes to a point on the curve.
func ValidatePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPublicKey)
	}

	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}

	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return nil, fmt.Errorf("%w: not a curve point", ErrInvalidPublicKey)
	}

	return ed25519.PublicKey(decoded), nil
}

// ParsePrivateKey decodes a base64 Ed25519 private key. Both the 64-byte
// key and the 32-byte seed form are accepted.
func ParsePrivateKey(privB64 string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPrivateKey)
	}

	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("%w: must be %d or %d bytes, got %d", ErrInvalidPrivateKey, ed25519.PrivateKeySize, ed25519.SeedSize, len(decoded))
	}
}

// GenerateKeypair returns a new base64-encoded Ed25519 keypair.
func GenerateKeypair() (pubB64, privB64 string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(pub), base64.StdEncoding.EncodeToString(priv), nil
}

// GenerateSecret returns n random bytes, base64-encoded, for use as an HMAC key.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
