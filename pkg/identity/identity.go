// Package identity defines the coordination server's view of an external
// identity provider — VerifyToken(token, claimedUserId) -> (user, ok) — and
// ships a reference implementation, JWTProvider, that verifies an
// HMAC-signed bearer token.
//
// Grounded on the pack's JWT validator (RoseWrightdev-Video-Conferencing's
// auth.Validator), simplified from JWKS/OIDC discovery to a shared-secret
// HMAC since there is no OIDC domain in scope here.
package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// User is the authenticated principal VerifyToken returns on success.
type User struct {
	UserID   string
	Username string
}

// Provider is the opaque external capability the dispatcher's handshake
// path depends on.
type Provider interface {
	// VerifyToken checks token and reports whether its subject matches
	// claimedUserID. ok is false for any rejection (invalid signature,
	// expired token, subject mismatch); err is reserved for transport-level
	// failures a resilience wrapper might retry.
	VerifyToken(ctx context.Context, token, claimedUserID string) (user User, ok bool, err error)
}

// claims is the JWT payload the reference provider expects: a registered
// subject claim (the user id) plus a display name.
type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTProvider verifies bearer tokens signed with a single HMAC shared
// secret. It is a reference implementation for local development and
// tests; a real deployment would swap it for an OIDC-backed provider
// without the dispatcher noticing, since both satisfy Provider.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a JWTProvider using the given HMAC shared secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// VerifyToken implements Provider.
func (p *JWTProvider) VerifyToken(ctx context.Context, token, claimedUserID string) (User, bool, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "VerifyToken",
			"error":    err,
		}).Debug("token verification failed")
		return User{}, false, nil
	}

	if !parsed.Valid {
		return User{}, false, nil
	}

	subject, err := c.GetSubject()
	if err != nil || subject == "" {
		return User{}, false, nil
	}

	if subject != claimedUserID {
		logrus.WithFields(logrus.Fields{
			"function": "VerifyToken",
			"subject":  subject,
			"claimed":  claimedUserID,
		}).Debug("token subject does not match claimed user id")
		return User{}, false, nil
	}

	username := c.Name
	if username == "" {
		username = subject
	}

	return User{UserID: subject, Username: username}, true, nil
}
