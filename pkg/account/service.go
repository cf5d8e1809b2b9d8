package account

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/govemail"
	"github.com/tendant/gov-idm/pkg/notification"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/token"
	"github.com/tendant/gov-idm/pkg/utils"
)

// forbiddenFieldChars rejects angle brackets in free-text profile fields.
var forbiddenFieldChars = regexp.MustCompile(`[<>]`)

// Service drives the account lifecycle: registration, profile updates, and
// the password-reset round trip.
type Service struct {
	store         store.Store
	tokens        *token.Service
	checker       password.PolicyChecker
	govEmail      *govemail.Validator
	notifications *notification.Manager
}

// NewService creates an account service. A nil policy checker falls back to
// the default policy; a nil validator falls back to the default .gov/.mil
// pattern.
func NewService(st store.Store, tokens *token.Service, checker password.PolicyChecker, govEmail *govemail.Validator, notifications *notification.Manager) *Service {
	if checker == nil {
		checker = password.NewDefaultPolicyChecker(nil, nil)
	}
	if govEmail == nil {
		govEmail = govemail.MustValidator("")
	}
	return &Service{
		store:         st,
		tokens:        tokens,
		checker:       checker,
		govEmail:      govEmail,
		notifications: notifications,
	}
}

// RegisterParams is the client-supplied registration payload. IsAdmin and
// IsAgencyAdmin are accepted in the shape so the decoder never errors on
// them, and then discarded: a client can never grant itself either flag.
type RegisterParams struct {
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Bio           string   `json:"bio"`
	Tags          []string `json:"tags"`
	IsAdmin       bool     `json:"isAdmin"`
	IsAgencyAdmin bool     `json:"isAgencyAdmin"`
}

// Register creates a new account with a local credential. All validation
// happens before any store mutation; the welcome notice is dispatched
// fire-and-forget after the account is persisted.
func (s *Service) Register(ctx context.Context, params RegisterParams) (store.User, error) {
	if params.Username == "" {
		return store.User{}, errors.MissingRequired("username")
	}
	username := utils.NormalizeEmail(params.Username)
	if !s.govEmail.Valid(username) {
		return store.User{}, errors.New(errors.ErrCodeInvalidDomain, "username is not a government email address")
	}
	if err := validateProfileFields(params.Name, params.Title); err != nil {
		return store.User{}, err
	}
	if err := s.checker.Validate(params.Password, username); err != nil {
		return store.User{}, errors.Wrap(err, errors.ErrCodeWeakPassword, "password does not meet password rules")
	}

	hashed, err := password.Hash(params.Password)
	if err != nil {
		return store.User{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}

	var newUser store.User
	if err := copier.Copy(&newUser, &params); err != nil {
		return store.User{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to map registration params")
	}
	newUser.Username = username
	// Hard invariant: admin flags are never client-settable.
	newUser.IsAdmin = false
	newUser.IsAgencyAdmin = false

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		inserted, err := tx.InsertUser(ctx, newUser)
		if err != nil {
			if stderrors.Is(err, store.ErrDuplicateUsername) {
				return errors.Newf(errors.ErrCodeDuplicateUsername, "a record with that username already exists (%s)", username)
			}
			return errors.StoreUnavailable(err)
		}
		if len(params.Tags) > 0 {
			if err := tx.ReplaceUserTags(ctx, inserted.ID, params.Tags); err != nil {
				return errors.StoreUnavailable(err)
			}
			inserted.Tags = params.Tags
		}
		if _, err := tx.InsertPassport(ctx, store.Passport{UserID: inserted.ID, Password: hashed}); err != nil {
			return errors.StoreUnavailable(err)
		}
		newUser = inserted
		return nil
	})
	if err != nil {
		return store.User{}, err
	}

	slog.Info("Registered user", "user_id", newUser.ID)
	s.notifications.Dispatch(notification.UserWelcomeNotice, notification.NotificationData{
		To: newUser.Username,
		Data: map[string]string{
			"Name": newUser.Name,
			"Link": fmt.Sprintf("%s/signin", s.notifications.BaseURL),
		},
	})
	return newUser, nil
}

// ProfileUpdateParams is a profile edit. Admin flags and the credential are
// not part of the shape; they are untouchable from this path.
type ProfileUpdateParams struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Bio      string    `json:"bio"`
	Tags     []string  `json:"tags"`
}

// UpdateProfile re-validates the username and free-text fields, then updates
// the user and replaces the full tag set as one unit: a failure mid-way rolls
// everything back rather than leaving a half-updated tag set.
func (s *Service) UpdateProfile(ctx context.Context, params ProfileUpdateParams) (store.User, error) {
	if params.Username == "" {
		return store.User{}, errors.MissingRequired("username")
	}
	username := utils.NormalizeEmail(params.Username)
	if !s.govEmail.Valid(username) {
		return store.User{}, errors.New(errors.ErrCodeInvalidDomain, "username is not a government email address")
	}
	if err := validateProfileFields(params.Name, params.Title); err != nil {
		return store.User{}, err
	}

	taken, err := s.store.IsUsernameTaken(ctx, username, params.ID)
	if err != nil {
		return store.User{}, errors.StoreUnavailable(err)
	}
	if taken {
		return store.User{}, errors.Newf(errors.ErrCodeDuplicateUsername, "a record with that username already exists (%s)", username)
	}

	var updated store.User
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		existing, err := tx.FindUserByID(ctx, params.ID)
		if err != nil {
			if stderrors.Is(err, store.ErrUserNotFound) {
				return errors.Newf(errors.ErrCodeConflict, "user %s not found", params.ID)
			}
			return errors.StoreUnavailable(err)
		}

		existing.Username = username
		existing.Name = params.Name
		existing.Title = params.Title
		existing.Bio = params.Bio
		updated, err = tx.UpdateUser(ctx, existing)
		if err != nil {
			if stderrors.Is(err, store.ErrDuplicateUsername) {
				return errors.Newf(errors.ErrCodeDuplicateUsername, "a record with that username already exists (%s)", username)
			}
			return errors.StoreUnavailable(err)
		}
		// Full replacement, not a diff: the stored set always matches the
		// submitted set exactly.
		if err := tx.ReplaceUserTags(ctx, params.ID, params.Tags); err != nil {
			return errors.StoreUnavailable(err)
		}
		updated.Tags = params.Tags
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return updated, nil
}

// ForgotPassword issues a reset token and mails it. An unknown email still
// returns success with no token issued, so the endpoint cannot be used to
// probe which addresses are registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return errors.MissingRequired("email")
	}
	email = utils.NormalizeEmail(email)

	user, err := s.store.FindUserByUsername(ctx, email)
	if err != nil {
		if stderrors.Is(err, store.ErrUserNotFound) {
			slog.Info("Password reset requested for unknown email")
			return nil
		}
		return errors.StoreUnavailable(err)
	}

	tok, err := s.tokens.Issue(ctx, store.PurposePasswordReset, user.Username)
	if err != nil {
		return err
	}

	s.notifications.Dispatch(notification.PasswordResetNotice, notification.NotificationData{
		To: user.Username,
		Data: map[string]string{
			"Link": fmt.Sprintf("%s/password-reset/%s", s.notifications.BaseURL, tok.Value),
		},
	})
	return nil
}

// CheckToken validates a raw reset token.
func (s *Service) CheckToken(ctx context.Context, raw string) (store.Token, error) {
	if raw == "" {
		return store.Token{}, errors.MissingRequired("token")
	}
	return s.tokens.Check(ctx, raw)
}

// ResetPassword redeems a reset token. The policy check runs against the
// token's bound email before anything mutates: a weak password leaves the
// token unconsumed and the passport untouched. The passport update and the
// token consumption then happen as one unit.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	tok, err := s.CheckToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if err := s.checker.Validate(newPassword, tok.Email); err != nil {
		return errors.Wrap(err, errors.ErrCodeWeakPassword, "password does not meet password rules")
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}

	return s.store.WithinTx(ctx, func(tx store.Store) error {
		user, err := tx.FindUserByUsername(ctx, tok.Email)
		if err != nil {
			if stderrors.Is(err, store.ErrUserNotFound) {
				return errors.New(errors.ErrCodeTokenNotFound, "token's account no longer exists")
			}
			return errors.StoreUnavailable(err)
		}
		if err := tx.UpdatePassport(ctx, store.Passport{UserID: user.ID, Password: hashed}); err != nil {
			if stderrors.Is(err, store.ErrPassportNotFound) {
				// Federated-only account gaining a local credential.
				if _, err := tx.InsertPassport(ctx, store.Passport{UserID: user.ID, Password: hashed}); err != nil {
					return errors.StoreUnavailable(err)
				}
			} else {
				return errors.StoreUnavailable(err)
			}
		}
		if _, err := tx.ConsumeToken(ctx, token.Normalize(rawToken)); err != nil {
			// Racing reset: the other request already consumed it; this
			// whole transaction rolls back.
			if stderrors.Is(err, store.ErrTokenNotFound) {
				return errors.New(errors.ErrCodeTokenNotFound, "token already consumed")
			}
			return errors.StoreUnavailable(err)
		}
		slog.Info("Password reset completed", "user_id", user.ID)
		return nil
	})
}

// FindProfile handles the "find your profile" step of account linking: the
// staged subject names an existing account, the staging record is bound to
// it, and a confirmation mail with the link handshake is sent. An unknown
// username still yields success so the flow cannot enumerate accounts.
func (s *Service) FindProfile(ctx context.Context, hash, username string) error {
	if hash == "" {
		return errors.MissingRequired("hash")
	}
	if username == "" {
		return errors.MissingRequired("username")
	}

	staging, err := s.store.FindStagingByHash(ctx, hash)
	if err != nil {
		if stderrors.Is(err, store.ErrStagingNotFound) {
			return errors.New(errors.ErrCodeLinkExpired, "no staging identity for hash")
		}
		return errors.StoreUnavailable(err)
	}
	if staging.Consumed() {
		return errors.New(errors.ErrCodeLinkExpired, "staging identity already claimed")
	}

	user, err := s.store.FindUserByUsername(ctx, utils.NormalizeEmail(username))
	if err != nil {
		if stderrors.Is(err, store.ErrUserNotFound) {
			slog.Info("Find-profile requested for unknown username")
			return nil
		}
		return errors.StoreUnavailable(err)
	}

	if err := s.store.SetStagingTarget(ctx, hash, user.ID); err != nil {
		if stderrors.Is(err, store.ErrStagingNotFound) || stderrors.Is(err, store.ErrConflict) {
			return errors.New(errors.ErrCodeLinkExpired, "staging identity gone or already claimed")
		}
		return errors.StoreUnavailable(err)
	}

	s.notifications.Dispatch(notification.ProfileFindNotice, notification.NotificationData{
		To: user.Username,
		Data: map[string]string{
			"Link": fmt.Sprintf("%s/api/auth/link?h=%s", s.notifications.BaseURL, hash),
		},
	})
	return nil
}

func validateProfileFields(name, title string) error {
	if forbiddenFieldChars.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidField, "name must not contain the special characters < or >")
	}
	if forbiddenFieldChars.MatchString(title) {
		return errors.New(errors.ErrCodeInvalidField, "title must not contain the special characters < or >")
	}
	return nil
}
