package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/govemail"
	"github.com/tendant/gov-idm/pkg/linkstate"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/utils"
)

const defaultStagingTTL = 24 * time.Hour

// Config is the explicit configuration of a Resolver. It replaces ambient
// process-wide flags: whether federated login is enabled is a property of the
// resolver instance, not of a global.
type Config struct {
	FederatedEnabled bool
	GovEmail         *govemail.Validator
	StagingTTL       time.Duration
}

// Resolver decides, for an inbound authentication event, which outcome
// applies: authenticate, create a staging identity, merge a staging identity
// into an existing account, or reject.
type Resolver struct {
	store  store.Store
	states *linkstate.Codec
	config Config
	now    func() time.Time
}

// NewResolver creates a resolver. A nil GovEmail validator falls back to the
// default .gov/.mil pattern; a zero StagingTTL falls back to 24 hours.
func NewResolver(st store.Store, states *linkstate.Codec, config Config) *Resolver {
	if config.GovEmail == nil {
		config.GovEmail = govemail.MustValidator("")
	}
	if config.StagingTTL <= 0 {
		config.StagingTTL = defaultStagingTTL
	}
	return &Resolver{
		store:  st,
		states: states,
		config: config,
		now:    time.Now,
	}
}

// Resolve processes one login event.
func (r *Resolver) Resolve(ctx context.Context, event LoginEvent) (Outcome, error) {
	switch ev := event.(type) {
	case LocalCredentials:
		return r.resolveLocal(ctx, ev)
	case FederatedAssertion:
		return r.resolveFederated(ctx, ev)
	default:
		return Outcome{}, errors.Newf(errors.ErrCodeInternal, "unknown login event type %T", event)
	}
}

func (r *Resolver) resolveLocal(ctx context.Context, creds LocalCredentials) (Outcome, error) {
	// Domain failures are surfaced distinctly so the caller can show a
	// domain-specific message instead of the generic one.
	if !r.config.GovEmail.Valid(creds.Username) {
		return Outcome{}, errors.New(errors.ErrCodeInvalidDomain, "username is not a government email address")
	}

	user, err := r.store.FindUserByUsername(ctx, creds.Username)
	if err != nil {
		if stderrors.Is(err, store.ErrUserNotFound) {
			// Same failure as a bad password: the caller must not be
			// able to probe which usernames exist.
			return Outcome{}, errors.New(errors.ErrCodeInvalidCredentials, "no user for username")
		}
		return Outcome{}, errors.StoreUnavailable(err)
	}

	if user.Disabled {
		return Outcome{}, errors.New(errors.ErrCodeAccountLocked, "account is locked")
	}

	passport, err := r.store.FindPassportByUserID(ctx, user.ID)
	if err != nil {
		if stderrors.Is(err, store.ErrPassportNotFound) {
			return Outcome{}, errors.New(errors.ErrCodeInvalidCredentials, "no local credential for user")
		}
		return Outcome{}, errors.StoreUnavailable(err)
	}

	match, err := password.CheckHash(creds.Password, passport.Password)
	if err != nil {
		return Outcome{}, errors.Wrap(err, errors.ErrCodeInternal, "password comparison failed")
	}
	if !match {
		return Outcome{}, errors.New(errors.ErrCodeInvalidCredentials, "password mismatch")
	}

	return Outcome{Kind: OutcomeAuthenticated, User: user}, nil
}

func (r *Resolver) resolveFederated(ctx context.Context, assertion FederatedAssertion) (Outcome, error) {
	if !r.config.FederatedEnabled {
		return Outcome{}, errors.NotAuthorized("federated login is disabled")
	}

	state, err := r.states.Decode(assertion.State)
	if err != nil {
		slog.Warn("Rejected federated assertion with bad link state", "subject", assertion.SubjectID, "err", err)
		return Outcome{}, err
	}

	switch state.Action {
	case linkstate.ActionLogin:
		return r.federatedLogin(ctx, assertion, state)
	case linkstate.ActionLink:
		return r.federatedLink(ctx, assertion, state)
	default:
		return Outcome{}, errors.New(errors.ErrCodeInvalidState, "link state carries unknown action")
	}
}

func (r *Resolver) federatedLogin(ctx context.Context, assertion FederatedAssertion, state linkstate.LinkState) (Outcome, error) {
	user, err := r.store.FindUserBySubjectID(ctx, assertion.SubjectID)
	if err == nil {
		if user.Disabled {
			return Outcome{}, errors.New(errors.ErrCodeAccountLocked, "account is locked")
		}
		return Outcome{Kind: OutcomeAuthenticated, User: user, Redirect: state.Redirect}, nil
	}
	if !stderrors.Is(err, store.ErrUserNotFound) {
		return Outcome{}, errors.StoreUnavailable(err)
	}

	// New subject: stage a provisional identity. The store guarantees one
	// live record per subject, so a concurrent duplicate login gets the
	// same correlation id and hash back.
	staging, err := r.store.InsertStaging(ctx, store.StagingIdentity{
		SubjectID: assertion.SubjectID,
		Hash:      subjectHash(assertion.SubjectID),
		Email:     assertion.Email,
		ExpiresAt: r.now().Add(r.config.StagingTTL),
	})
	if err != nil {
		return Outcome{}, errors.StoreUnavailable(err)
	}
	slog.Info("Created staging identity for new federated subject", "correlation_id", staging.ID)
	return Outcome{Kind: OutcomeStagingCreated, Staging: staging, Redirect: state.Redirect}, nil
}

func (r *Resolver) federatedLink(ctx context.Context, assertion FederatedAssertion, state linkstate.LinkState) (Outcome, error) {
	hash := state.Data["h"]
	if hash == "" {
		return Outcome{}, errors.New(errors.ErrCodeLinkExpired, "link state carries no correlation hash")
	}

	var merged store.User
	err := r.store.WithinTx(ctx, func(tx store.Store) error {
		staging, err := tx.ClaimStaging(ctx, hash)
		if err != nil {
			if stderrors.Is(err, store.ErrStagingNotFound) || stderrors.Is(err, store.ErrConflict) {
				return errors.New(errors.ErrCodeLinkExpired, "staging identity gone or already claimed")
			}
			return errors.StoreUnavailable(err)
		}

		// The subject completing the handshake must be the one that was
		// staged; anyone else has no rights to the target account.
		if staging.SubjectID != assertion.SubjectID {
			return errors.NotAuthorized("assertion subject does not match staged subject")
		}
		if !staging.TargetUserID.Valid {
			return errors.New(errors.ErrCodeLinkExpired, "staging identity has no target account")
		}

		merged, err = tx.FindUserByID(ctx, staging.TargetUserID.UUID)
		if err != nil {
			if stderrors.Is(err, store.ErrUserNotFound) {
				return errors.New(errors.ErrCodeLinkExpired, "target account no longer exists")
			}
			return errors.StoreUnavailable(err)
		}
		if merged.Disabled {
			return errors.New(errors.ErrCodeAccountLocked, "target account is locked")
		}

		if err := tx.LinkSubjectToUser(ctx, assertion.SubjectID, merged.ID); err != nil {
			return errors.StoreUnavailable(err)
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	slog.Info("Linked federated subject to account", "user_id", merged.ID)
	return Outcome{Kind: OutcomeAuthenticated, User: merged, Redirect: state.Redirect}, nil
}

// subjectHash derives the correlation hash presented in the find-profile
// flow. The random salt keeps it unguessable from the subject id alone.
func subjectHash(subjectID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", subjectID, utils.GenerateRandomString(16))))
	return hex.EncodeToString(sum[:])
}
