package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer mints tokens the gate accepts. Used by the sign tool and tests.
type Issuer struct {
	Secret     []byte
	PrivateKey ed25519.PrivateKey // EdDSA when set, HS256 otherwise
	Issuer     string
	TTL        time.Duration
}

// Mint signs a token for the identity.
func (i *Issuer) Mint(id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: user ID is required")
	}

	ttl := i.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()

	claims := Claims{
		AgentID:   id.AgentID,
		SessionID: id.SessionID,
		Email:     id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if i.PrivateKey != nil {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.PrivateKey)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	}

	if len(i.Secret) == 0 {
		return "", errors.New("auth: no signing key configured")
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
