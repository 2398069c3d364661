// Package auth extracts the owner identity from a channel's handshake
// metadata. Absence of identity is a rejection decision for the caller,
// never a crash.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Errors
var (
	// ErrNoIdentity means the handshake carried no owner identity at all.
	ErrNoIdentity = errors.New("no owner identity in handshake")

	// ErrInvalidToken means a token was presented but failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Extractor resolves the owner id for a new channel. With a signing
// secret configured, it requires an HMAC-signed JWT (Authorization
// bearer header or "token" query parameter) and uses the subject claim.
// Without one, the plain "owner" query parameter is accepted; that mode
// is for local development only.
type Extractor struct {
	secret []byte
}

// New creates an extractor. An empty secret enables the development
// query-parameter mode.
func New(secret string) *Extractor {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Extractor{secret: key}
}

// OwnerID resolves the owner identity for an upgrade request.
func (e *Extractor) OwnerID(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if e.secret == nil {
		if token != "" {
			return "", fmt.Errorf("%w: token presented but no secret configured", ErrInvalidToken)
		}
		owner := strings.TrimSpace(r.URL.Query().Get("owner"))
		if owner == "" {
			return "", ErrNoIdentity
		}
		return owner, nil
	}

	if token == "" {
		return "", ErrNoIdentity
	}

	return e.subject(token)
}

// subject verifies the token and returns its subject claim.
func (e *Extractor) subject(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
