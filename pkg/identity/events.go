package identity

import (
	"github.com/tendant/gov-idm/pkg/store"
)

// LoginEvent is an inbound authentication attempt: either local credentials
// or a federated assertion from the single-sign-on provider.
type LoginEvent interface {
	loginEvent()
}

// LocalCredentials is a username/password login attempt. Callers must
// lowercase and trim the username before building the event; lookups match
// the stored value case-sensitively.
type LocalCredentials struct {
	Username string
	Password string
}

func (LocalCredentials) loginEvent() {}

// FederatedAssertion is a verified assertion from the federated identity
// provider. State is the raw signed link-state string echoed back through the
// round trip; it is untrusted until the resolver verifies it.
type FederatedAssertion struct {
	SubjectID string
	Email     string
	State     string
}

func (FederatedAssertion) loginEvent() {}

// OutcomeKind enumerates the non-error results of resolving a login event.
type OutcomeKind int

const (
	// OutcomeAuthenticated means the event maps to a known account; the
	// caller hands Outcome.User to the session establisher.
	OutcomeAuthenticated OutcomeKind = iota + 1
	// OutcomeStagingCreated means the federated subject is new; the caller
	// starts the "find your profile" flow with Outcome.Staging.
	OutcomeStagingCreated
)

// Outcome is the result of a successfully resolved login event.
type Outcome struct {
	Kind     OutcomeKind
	User     store.User
	Staging  store.StagingIdentity
	Redirect string
}
