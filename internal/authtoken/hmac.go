// Package authtoken provides optional HS256 bearer-token verification for
// the operator HTTP surface, for deployments that front AdminAddr with a
// rotating signed token instead of a static shared secret. Tokens are
// standard compact JWTs; parsing and signature/expiry validation are
// delegated to github.com/golang-jwt/jwt, and a non-empty subject claim,
// naming an operator identity rather than a session, is required.
package authtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
)

// Claims captures the minimal JWT payload used by admin-token verification.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

// Verifier validates compact JWT tokens signed with HS256.
type Verifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewVerifier constructs a Verifier for the supplied shared secret and clock skew allowance.
func NewVerifier(secret string, leeway time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Verifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// Verify parses the token and validates the signature and expiry, returning the embedded claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	registered, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(registered.Subject) == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if len(registered.Audience) > 0 {
		claims.Audience = registered.Audience[0]
	}
	return claims, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *Verifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}
