package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/notification"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/token"
)

type accountFixture struct {
	svc    *Service
	store  *store.InMemoryStore
	tokens *token.Service
	mock   *notification.MockNotifier
}

func newFixture(t *testing.T) *accountFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	tokens := token.NewService(st)
	mock := notification.NewMockNotifier()
	mgr := notification.NewManager("http://localhost:4000", mock)
	for _, notice := range []notification.NoticeType{
		notification.UserWelcomeNotice,
		notification.PasswordResetNotice,
		notification.ProfileFindNotice,
	} {
		require.NoError(t, mgr.Register(notice, notification.Template{Subject: "s", Body: "{{.Link}}{{.Name}}"}))
	}
	return &accountFixture{
		svc:    NewService(st, tokens, nil, nil, mgr),
		store:  st,
		tokens: tokens,
		mock:   mock,
	}
}

// waitForNotices polls until the mock notifier has recorded n sends, since
// dispatch happens on its own goroutine.
func waitForNotices(t *testing.T, mock *notification.MockNotifier, n int) []notification.SentNotice {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := mock.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d notifications, got %d", n, len(mock.Sent()))
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, RegisterParams{
			Username: "Alice@Agency.GOV ",
			Password: "Str0ng!Pass",
			Name:     "Alice",
			Tags:     []string{"gis"},
		})
		require.NoError(t, err)
		assert.Equal(t, "alice@agency.gov", user.Username)
		assert.Equal(t, []string{"gis"}, user.Tags)

		sent := waitForNotices(t, f.mock, 1)
		assert.Equal(t, notification.UserWelcomeNotice, sent[0].Notice)
		assert.Equal(t, "alice@agency.gov", sent[0].Data.To)
		assert.Equal(t, "Alice", sent[0].Data.Data["Name"])
		assert.Equal(t, "http://localhost:4000/signin", sent[0].Data.Data["Link"])
	})

	t.Run("AdminFlagsStripped", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, RegisterParams{
			Username:      "alice@agency.gov",
			Password:      "Str0ng!Pass",
			IsAdmin:       true,
			IsAgencyAdmin: true,
		})
		require.NoError(t, err)
		assert.False(t, user.IsAdmin)
		assert.False(t, user.IsAgencyAdmin)

		stored, err := f.store.FindUserByUsername(ctx, "alice@agency.gov")
		require.NoError(t, err)
		assert.False(t, stored.IsAdmin, "isAdmin must be absent from the stored record even if submitted as true")
		assert.False(t, stored.IsAgencyAdmin)
	})

	t.Run("MissingUsername", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterParams{Password: "Str0ng!Pass"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeMissingRequired))
	})

	t.Run("InvalidDomain", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterParams{
			Username: "alice@example.com",
			Password: "Str0ng!Pass",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidDomain))
	})

	t.Run("WeakPasswordNoMutation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterParams{
			Username: "alice@agency.gov",
			Password: "weak",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeWeakPassword))

		_, err = f.store.FindUserByUsername(ctx, "alice@agency.gov")
		assert.ErrorIs(t, err, store.ErrUserNotFound, "validation failure must not leave partial state")
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "Str0ng!Pass"})
		require.NoError(t, err)
		_, err = f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "0ther!Pass"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateUsername))
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, f *accountFixture, username string) store.User {
		user, err := f.svc.Register(ctx, RegisterParams{Username: username, Password: "Str0ng!Pass"})
		require.NoError(t, err)
		return user
	}

	t.Run("ReplacesTagSet", func(t *testing.T) {
		f := newFixture(t)
		user := register(t, f, "alice@agency.gov")

		updated, err := f.svc.UpdateProfile(ctx, ProfileUpdateParams{
			ID:       user.ID,
			Username: "alice@agency.gov",
			Name:     "Alice",
			Tags:     []string{"gis", "data"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"gis", "data"}, updated.Tags)

		updated, err = f.svc.UpdateProfile(ctx, ProfileUpdateParams{
			ID:       user.ID,
			Username: "alice@agency.gov",
			Name:     "Alice",
			Tags:     []string{"policy"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"policy"}, updated.Tags, "tag set is replaced, not merged")
	})

	t.Run("ForbiddenCharactersNeverPersist", func(t *testing.T) {
		f := newFixture(t)
		user := register(t, f, "alice@agency.gov")

		for _, field := range []ProfileUpdateParams{
			{ID: user.ID, Username: "alice@agency.gov", Name: "<script>alert(1)</script>"},
			{ID: user.ID, Username: "alice@agency.gov", Name: "ok", Title: "CTO >"},
		} {
			_, err := f.svc.UpdateProfile(ctx, field)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidField))
		}

		stored, err := f.store.FindUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Name)
		assert.Empty(t, stored.Title)
	})

	t.Run("UniquenessExcludesOwnRecord", func(t *testing.T) {
		f := newFixture(t)
		user := register(t, f, "alice@agency.gov")
		register(t, f, "bob@agency.gov")

		// Keeping one's own username is not a conflict.
		_, err := f.svc.UpdateProfile(ctx, ProfileUpdateParams{ID: user.ID, Username: "alice@agency.gov"})
		assert.NoError(t, err)

		// Taking someone else's is.
		_, err = f.svc.UpdateProfile(ctx, ProfileUpdateParams{ID: user.ID, Username: "bob@agency.gov"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateUsername))
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("KnownEmailIssuesToken", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "Str0ng!Pass"})
		require.NoError(t, err)
		waitForNotices(t, f.mock, 1) // welcome

		require.NoError(t, f.svc.ForgotPassword(ctx, " Alice@Agency.GOV "))
		sent := waitForNotices(t, f.mock, 2)
		assert.Equal(t, notification.PasswordResetNotice, sent[1].Notice)
		assert.Contains(t, sent[1].Data.Body, "/password-reset/")
	})

	t.Run("UnknownEmailGenericSuccessNoToken", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ForgotPassword(ctx, "nobody@agency.gov")
		assert.NoError(t, err, "unknown email must still look like success")
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, f.mock.Sent(), "no token may be issued or mailed for a non-existent account")
	})

	t.Run("MissingEmail", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ForgotPassword(ctx, "")
		assert.True(t, errors.IsCode(err, errors.ErrCodeMissingRequired))
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()

	issueReset := func(t *testing.T, f *accountFixture, email string) store.Token {
		tok, err := f.tokens.Issue(ctx, store.PurposePasswordReset, email)
		require.NoError(t, err)
		return tok
	}

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "Str0ng!Pass"})
		require.NoError(t, err)
		tok := issueReset(t, f, "alice@agency.gov")

		require.NoError(t, f.svc.ResetPassword(ctx, tok.Value, "N3w!Passw0rd"))

		passport, err := f.store.FindPassportByUserID(ctx, user.ID)
		require.NoError(t, err)
		match, err := password.CheckHash("N3w!Passw0rd", passport.Password)
		require.NoError(t, err)
		assert.True(t, match)

		// Token is gone after use.
		_, err = f.svc.CheckToken(ctx, tok.Value)
		assert.True(t, errors.IsCode(err, errors.ErrCodeTokenNotFound))
	})

	t.Run("WeakPasswordLeavesTokenAndPassport", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "Str0ng!Pass"})
		require.NoError(t, err)
		tok := issueReset(t, f, "alice@agency.gov")

		// Password equal to the email local part is trivially guessable.
		err = f.svc.ResetPassword(ctx, tok.Value, "alice")
		assert.True(t, errors.IsCode(err, errors.ErrCodeWeakPassword))

		passport, err := f.store.FindPassportByUserID(ctx, user.ID)
		require.NoError(t, err)
		match, err := password.CheckHash("Str0ng!Pass", passport.Password)
		require.NoError(t, err)
		assert.True(t, match, "passport must be untouched")

		_, err = f.svc.CheckToken(ctx, tok.Value)
		assert.NoError(t, err, "token must remain unconsumed")
	})

	t.Run("UnknownToken", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ResetPassword(ctx, "nosuchtoken", "N3w!Passw0rd")
		assert.True(t, errors.IsCode(err, errors.ErrCodeTokenNotFound))
	})

	t.Run("ExpiredTokenDistinct", func(t *testing.T) {
		st := store.NewInMemoryStore()
		tokens := token.NewService(st, token.WithResetTTL(time.Nanosecond))
		mgr := notification.NewManager("", notification.NewMockNotifier())
		svc := NewService(st, tokens, nil, nil, mgr)

		tok, err := tokens.Issue(ctx, store.PurposePasswordReset, "alice@agency.gov")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)

		err = svc.ResetPassword(ctx, tok.Value, "N3w!Passw0rd")
		assert.True(t, errors.IsCode(err, errors.ErrCodeTokenExpired))
	})
}

func TestFindProfile(t *testing.T) {
	ctx := context.Background()

	newStaging := func(t *testing.T, f *accountFixture, subject string) store.StagingIdentity {
		staging, err := f.store.InsertStaging(ctx, store.StagingIdentity{
			SubjectID: subject,
			Hash:      "hash-" + subject,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		return staging
	}

	t.Run("BindsTargetAndSendsConfirmation", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, RegisterParams{Username: "alice@agency.gov", Password: "Str0ng!Pass"})
		require.NoError(t, err)
		waitForNotices(t, f.mock, 1)
		staging := newStaging(t, f, "sso-1")

		require.NoError(t, f.svc.FindProfile(ctx, staging.Hash, "alice@agency.gov"))

		bound, err := f.store.FindStagingByHash(ctx, staging.Hash)
		require.NoError(t, err)
		require.True(t, bound.TargetUserID.Valid)
		assert.Equal(t, user.ID, bound.TargetUserID.UUID)

		sent := waitForNotices(t, f.mock, 2)
		assert.Equal(t, notification.ProfileFindNotice, sent[1].Notice)
		assert.Contains(t, sent[1].Data.Body, staging.Hash)
	})

	t.Run("UnknownUsernameGenericSuccess", func(t *testing.T) {
		f := newFixture(t)
		staging := newStaging(t, f, "sso-2")

		assert.NoError(t, f.svc.FindProfile(ctx, staging.Hash, "nobody@agency.gov"))
		bound, err := f.store.FindStagingByHash(ctx, staging.Hash)
		require.NoError(t, err)
		assert.False(t, bound.TargetUserID.Valid)
	})

	t.Run("UnknownHashExpired", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.FindProfile(ctx, "no-such-hash", "alice@agency.gov")
		assert.True(t, errors.IsCode(err, errors.ErrCodeLinkExpired))
	})
}
