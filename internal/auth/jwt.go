// Package auth is the authentication provider of the application: it signs
// accounts up, signs them in with a password or through GitHub, issues the
// session token, and tells subscribers when the active session ends.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The operator signs in (POST /login, or the GitHub OAuth round trip)
//  2. The provider checks the credentials against the users collection
//  3. It issues a signed JWT and arms a timer for the token's expiry
//  4. The handler stores the resulting model.User in the session store
//  5. On sign-out, or when the timer fires, the provider notifies every
//     subscriber with nil ("no active session") and the session store clears
//     itself and sends the UI back to the login page
//
// WHY JWT?
// The token carries its own expiry and is signed, so after a restart the
// cached token can be checked without any server-side session table:
// Resume validates it and re-arms the expiry timer.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<account id>","exp":1234567890,"jti":"<uuid>"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "time-estimator"

// DefaultTokenTTL is how long a session lasts when the config does not say.
const DefaultTokenTTL = time.Hour

// ErrTokenExpired is returned by Validate for a well-formed token whose
// expiry has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a zero ttl means DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Claims is what a valid token says about its holder.
type Claims struct {
	AccountID string
	Provider  string
	TokenID   string
	ExpiresAt time.Time
}

// tokenClaims is the JWT payload: the registered claims plus the sign-in
// provider, so a resumed session knows how it was started.
type tokenClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"prv,omitempty"`
}

// Issue signs a token for the account, valid for the service's TTL.
//
// Every token gets a random "jti" so two sign-ins in the same second still
// produce different tokens.
func (s *TokenService) Issue(accountID, provider string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	c := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
		Provider: provider,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	// the exp claim has second precision; report what the token actually says
	return signed, expiresAt.Truncate(time.Second), nil
}

// Validate parses and verifies a token.
//
// SECURITY: only HS256 is accepted. Without WithValidMethods an attacker
// could send a token with "alg":"none" and skip the signature check.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &Claims{
		AccountID: c.Subject,
		Provider:  c.Provider,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
