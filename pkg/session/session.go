package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/gov-idm/pkg/store"
)

// Session is an established authenticated session.
type Session struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// Establisher converts a resolved identity into an authenticated session.
// The identity workflow only depends on this contract; the JWT implementation
// below is one way to satisfy it.
type Establisher interface {
	Login(ctx context.Context, user store.User) (Session, error)
	Logout(ctx context.Context, session Session) error
}
