package token

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/utils"
)

const (
	// tokenLength of 32 chars over [a-zA-Z0-9] is ~190 bits of entropy,
	// comfortably above the 128-bit floor for unguessable tokens.
	tokenLength = 32

	defaultResetTTL   = 24 * time.Hour
	defaultConfirmTTL = 24 * time.Hour
)

// Service issues, validates, and consumes single-use tokens.
type Service struct {
	store      store.Store
	resetTTL   time.Duration
	confirmTTL time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithResetTTL overrides the validity window of password-reset tokens.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithConfirmTTL overrides the validity window of email-confirmation tokens.
func WithConfirmTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.confirmTTL = ttl
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service with 24-hour default windows.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		resetTTL:   defaultResetTTL,
		confirmTTL: defaultConfirmTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize puts a raw token value in canonical form (lowercase, trimmed).
// Applied before storage and before every lookup, so case or whitespace
// differences in transit never cause false negatives.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Issue creates and stores a token bound to the given email.
func (s *Service) Issue(ctx context.Context, purpose store.TokenPurpose, email string) (store.Token, error) {
	ttl := s.resetTTL
	if purpose == store.PurposeEmailConfirm {
		ttl = s.confirmTTL
	}
	tok := store.Token{
		Value:     Normalize(utils.GenerateRandomString(tokenLength)),
		Purpose:   purpose,
		Email:     utils.NormalizeEmail(email),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.InsertToken(ctx, tok); err != nil {
		slog.Error("Failed to store token", "purpose", purpose, "err", err)
		return store.Token{}, errors.StoreUnavailable(err)
	}
	return tok, nil
}

// Check validates a raw token value. Expiry is evaluated now, at validation
// time: an expired token still in storage yields TOKEN_EXPIRED, distinct from
// TOKEN_NOT_FOUND. A consumed token is gone for callers and yields
// TOKEN_NOT_FOUND.
func (s *Service) Check(ctx context.Context, raw string) (store.Token, error) {
	tok, err := s.store.FindToken(ctx, Normalize(raw))
	if err != nil {
		if stderrors.Is(err, store.ErrTokenNotFound) {
			return store.Token{}, errors.New(errors.ErrCodeTokenNotFound, "token not found")
		}
		return store.Token{}, errors.StoreUnavailable(err)
	}
	if tok.Consumed() {
		return store.Token{}, errors.New(errors.ErrCodeTokenNotFound, "token already consumed")
	}
	if tok.Expired(s.now()) {
		return store.Token{}, errors.New(errors.ErrCodeTokenExpired, "token expired")
	}
	return tok, nil
}

// Consume invalidates a token permanently. The store guard means a second
// consume of the same token fails instead of silently succeeding, closing the
// replay window.
func (s *Service) Consume(ctx context.Context, raw string) (store.Token, error) {
	tok, err := s.store.ConsumeToken(ctx, Normalize(raw))
	if err != nil {
		if stderrors.Is(err, store.ErrTokenNotFound) {
			return store.Token{}, errors.New(errors.ErrCodeTokenNotFound, "token not found or already consumed")
		}
		return store.Token{}, errors.StoreUnavailable(err)
	}
	return tok, nil
}
