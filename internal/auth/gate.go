// Package auth verifies bearer credentials and turns them into identities.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

// ErrInvalidCredential is returned for any credential the gate refuses:
// absent, malformed, expired, or signed with the wrong key.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the authorized caller behind a credential.
type Identity struct {
	UserID    string
	AgentID   string
	SessionID string // optional session claim
	Email     string
}

// Gate decides whether a credential is authorized.
type Gate interface {
	Authorize(credential string) (*Identity, error)
}

// Claims is the JWT claim set the gate understands.
type Claims struct {
	UserID    string `json:"userId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
	SessionID string `json:"sid,omitempty"`
	// SessionIDAlt is the long-form session claim some issuers use.
	SessionIDAlt string `json:"sessionId,omitempty"`
	Email        string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTGate verifies HS256 tokens and, when a public key is configured, EdDSA tokens.
type JWTGate struct {
	secret []byte
	pubkey ed25519.PublicKey
	issuer string
	parser *jwt.Parser
}

// GateConfig configures a JWTGate.
type GateConfig struct {
	Secret    string
	PublicKey string // base64 Ed25519, optional
	Issuer    string // enforced when set
}

// NewJWTGate creates a gate from its configuration.
func NewJWTGate(cfg GateConfig) (*JWTGate, error) {
	if cfg.Secret == "" && cfg.PublicKey == "" {
		return nil, errors.New("auth: a JWT secret or public key is required")
	}

	g := &JWTGate{secret: []byte(cfg.Secret), issuer: cfg.Issuer}

	methods := []string{}
	if cfg.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.PublicKey != "" {
		pub, err := crypto.ValidatePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		g.pubkey = pub
		methods = append(methods, jwt.SigningMethodEdDSA.Alg())
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithLeeway(5 * time.Second)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	g.parser = jwt.NewParser(opts...)

	return g, nil
}

// Authorize verifies the credential and returns the identity it carries.
func (g *JWTGate) Authorize(credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidCredential)
	}

	claims := &Claims{}
	_, err := g.parser.ParseWithClaims(credential, claims, g.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = claims.SessionIDAlt
	}

	return &Identity{
		UserID:    userID,
		AgentID:   claims.AgentID,
		SessionID: sessionID,
		Email:     claims.Email,
	}, nil
}

func (g *JWTGate) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(g.secret) == 0 {
			return nil, errors.New("HMAC tokens not accepted")
		}
		return g.secret, nil
	case *jwt.SigningMethodEd25519:
		if g.pubkey == nil {
			return nil, errors.New("EdDSA tokens not accepted")
		}
		return g.pubkey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// ExtractToken extracts the token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}
