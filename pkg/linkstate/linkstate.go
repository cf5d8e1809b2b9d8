package linkstate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/gov-idm/pkg/errors"
)

// Actions a state payload may carry through the federated round trip.
const (
	ActionLogin = "login"
	ActionLink  = "link"
)

const defaultTTL = 15 * time.Minute

// LinkState is the payload passed through the federated-login round trip. It
// is echoed back by the client and therefore untrusted: Codec signs it on the
// way out and verifies the signature on the way back, so tampering is
// detectable instead of silently honored.
type LinkState struct {
	Action   string            `json:"action"`
	Redirect string            `json:"redirect,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type stateClaims struct {
	Action   string            `json:"act"`
	Redirect string            `json:"red,omitempty"`
	Data     map[string]string `json:"dat,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies LinkState payloads as compact HS256 JWS strings.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides how long an emitted state stays verifiable.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec signing with the given secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("link state secret cannot be empty")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs the state and returns the compact serialized form.
func (c *Codec) Encode(state LinkState) (string, error) {
	if state.Action != ActionLogin && state.Action != ActionLink {
		return "", fmt.Errorf("unknown link state action: %q", state.Action)
	}
	now := c.now()
	claims := stateClaims{
		Action:   state.Action,
		Redirect: state.Redirect,
		Data:     state.Data,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the signature and expiry and returns the original state.
// Any tampering, an expired signature, or an unknown action yields
// INVALID_STATE.
func (c *Codec) Decode(raw string) (LinkState, error) {
	var claims stateClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return LinkState{}, errors.Wrap(err, errors.ErrCodeInvalidState, "link state failed verification")
	}
	if !tok.Valid {
		return LinkState{}, errors.New(errors.ErrCodeInvalidState, "link state failed verification")
	}
	if claims.Action != ActionLogin && claims.Action != ActionLink {
		return LinkState{}, errors.New(errors.ErrCodeInvalidState, "link state carries unknown action")
	}
	return LinkState{
		Action:   claims.Action,
		Redirect: claims.Redirect,
		Data:     claims.Data,
	}, nil
}
