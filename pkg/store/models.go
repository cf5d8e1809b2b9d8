package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations. Services translate these
// into the closed taxonomy in pkg/errors; nothing above the store layer
// inspects driver errors directly.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrPassportNotFound  = errors.New("passport not found")
	ErrTokenNotFound     = errors.New("token not found")
	ErrStagingNotFound   = errors.New("staging identity not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrConflict          = errors.New("record not in expected state")
)

// User is an account identified by a government email address. The admin
// flags are never client-settable; services strip them from inbound payloads
// before anything reaches the store.
type User struct {
	ID            uuid.UUID
	Username      string
	Name          string
	Title         string
	Bio           string
	IsAdmin       bool
	IsAgencyAdmin bool
	Disabled      bool
	Tags          []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Passport is the local credential record bound 1:1 to a User. Password holds
// a bcrypt hash, never plain text.
type Passport struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPurpose narrows what a one-time token may be redeemed for.
type TokenPurpose string

const (
	PurposeEmailConfirm  TokenPurpose = "email-confirm"
	PurposePasswordReset TokenPurpose = "password-reset"
)

// Token is a single-use, time-bound credential bound to an email address.
// A token is valid at most once and only before ExpiresAt; ConsumedAt is set
// exactly once.
type Token struct {
	Value      string
	Purpose    TokenPurpose
	Email      string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Consumed reports whether the token has already been redeemed.
func (t Token) Consumed() bool {
	return t.ConsumedAt != nil
}

// Expired reports whether the token is past its expiry at the given instant.
// The boundary itself counts as expired.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// StagingIdentity is a provisional record produced when a federated login does
// not match any linked account. ID doubles as the correlation id handed to the
// "find your profile" flow; Hash identifies the record in link callbacks.
// A staging identity never authenticates a session directly.
type StagingIdentity struct {
	ID         uuid.UUID
	SubjectID  string
	Hash       string
	Email      string
	// TargetUserID is set once the subject has chosen an existing account
	// to merge into via the find-profile flow.
	TargetUserID uuid.NullUUID
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
}

// Consumed reports whether the staging identity has been retired.
func (s StagingIdentity) Consumed() bool {
	return s.ConsumedAt != nil
}

// Expired reports whether the staging identity is past its expiry at the
// given instant. The boundary itself counts as expired.
func (s StagingIdentity) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
