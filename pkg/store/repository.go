package store

import (
	"context"

	"github.com/google/uuid"
)

// Store is the credential store contract consumed by the identity, token, and
// account services. Implementations are the source of truth across request
// instances: the compare-and-swap operations (ConsumeToken, ClaimStaging)
// succeed only if the record is in the expected pre-state and report
// ErrConflict or a not-found error otherwise, so two requests racing on the
// same token or staging record cannot both win.
type Store interface {
	// User operations. Usernames are stored normalized (lower/trim);
	// callers normalize before lookup.
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (User, error)
	IsUsernameTaken(ctx context.Context, username string, excludingID uuid.UUID) (bool, error)
	InsertUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	ReplaceUserTags(ctx context.Context, userID uuid.UUID, tags []string) error

	// Passport operations.
	FindPassportByUserID(ctx context.Context, userID uuid.UUID) (Passport, error)
	InsertPassport(ctx context.Context, passport Passport) (Passport, error)
	UpdatePassport(ctx context.Context, passport Passport) error

	// Token operations. FindToken returns the record regardless of expiry or
	// consumption; callers decide which failure to surface. ConsumeToken is
	// the CAS: it succeeds only for a stored, unconsumed token.
	InsertToken(ctx context.Context, token Token) error
	FindToken(ctx context.Context, value string) (Token, error)
	ConsumeToken(ctx context.Context, value string) (Token, error)

	// Staging identity operations. InsertStaging is idempotent per subject
	// id: a concurrent duplicate returns the already-stored record instead
	// of creating a second one. ClaimStaging is the CAS used by account
	// linking: it retires a live, unconsumed record or fails.
	InsertStaging(ctx context.Context, staging StagingIdentity) (StagingIdentity, error)
	FindStagingByHash(ctx context.Context, hash string) (StagingIdentity, error)
	SetStagingTarget(ctx context.Context, hash string, userID uuid.UUID) error
	ClaimStaging(ctx context.Context, hash string) (StagingIdentity, error)
	FindUserBySubjectID(ctx context.Context, subjectID string) (User, error)
	LinkSubjectToUser(ctx context.Context, subjectID string, userID uuid.UUID) error

	// WithinTx runs fn against a Store whose operations either all persist
	// or all roll back. Password reset and profile-tag replacement rely on
	// this to never leave half-applied state.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
