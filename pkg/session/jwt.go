package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/gov-idm/pkg/store"
)

const defaultTokenTTL = 12 * time.Hour

// JWTEstablisher issues HS256-signed session tokens. The same secret feeds
// the jwtauth verifier middleware protecting authenticated routes.
type JWTEstablisher struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a JWTEstablisher.
type Option func(*JWTEstablisher)

// WithTTL overrides the session token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(e *JWTEstablisher) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *JWTEstablisher) {
		e.now = now
	}
}

// NewJWTEstablisher creates an establisher signing with the given secret.
func NewJWTEstablisher(secret, issuer string, opts ...Option) (*JWTEstablisher, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret cannot be empty")
	}
	e := &JWTEstablisher{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Login issues a session token for the resolved user. Admin flags ride along
// as claims so route middleware can authorize without a store round trip.
func (e *JWTEstablisher) Login(ctx context.Context, user store.User) (Session, error) {
	now := e.now()
	expiresAt := now.Add(e.ttl)
	claims := jwt.MapClaims{
		"sub":           user.ID.String(),
		"username":      user.Username,
		"isAdmin":       user.IsAdmin,
		"isAgencyAdmin": user.IsAgencyAdmin,
		"iss":           e.issuer,
		"iat":           jwt.NewNumericDate(now),
		"exp":           jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return Session{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return Session{Token: signed, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// Logout is a no-op for stateless JWT sessions; the handler clears the
// cookie.
func (e *JWTEstablisher) Logout(ctx context.Context, session Session) error {
	return nil
}
