package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/linkstate"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.InMemoryStore, *linkstate.Codec) {
	t.Helper()
	st := store.NewInMemoryStore()
	codec, err := linkstate.NewCodec("test-secret")
	require.NoError(t, err)
	resolver := NewResolver(st, codec, Config{FederatedEnabled: true})
	return resolver, st, codec
}

func seedUser(t *testing.T, st store.Store, username, plaintext string) store.User {
	t.Helper()
	ctx := context.Background()
	user, err := st.InsertUser(ctx, store.User{Username: username, Name: "Test User"})
	require.NoError(t, err)
	hashed, err := password.Hash(plaintext)
	require.NoError(t, err)
	_, err = st.InsertPassport(ctx, store.Passport{UserID: user.ID, Password: hashed})
	require.NoError(t, err)
	return user
}

func TestResolveLocalCredentials(t *testing.T) {
	ctx := context.Background()
	resolver, st, _ := newTestResolver(t)
	user := seedUser(t, st, "alice@agency.gov", "Str0ng!Pass")

	t.Run("Authenticated", func(t *testing.T) {
		outcome, err := resolver.Resolve(ctx, LocalCredentials{
			Username: "alice@agency.gov",
			Password: "Str0ng!Pass",
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAuthenticated, outcome.Kind)
		assert.Equal(t, user.ID, outcome.User.ID)
	})

	t.Run("InvalidDomain", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, LocalCredentials{
			Username: "alice@example.com",
			Password: "Str0ng!Pass",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidDomain))
	})

	t.Run("UnknownUserLooksLikeBadPassword", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, LocalCredentials{
			Username: "nobody@agency.gov",
			Password: "Str0ng!Pass",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCredentials))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, LocalCredentials{
			Username: "alice@agency.gov",
			Password: "Wr0ng!Pass",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCredentials))
	})

	t.Run("LockedAccount", func(t *testing.T) {
		locked := seedUser(t, st, "locked@agency.gov", "Str0ng!Pass")
		locked.Disabled = true
		_, err := st.UpdateUser(ctx, locked)
		require.NoError(t, err)

		_, err = resolver.Resolve(ctx, LocalCredentials{
			Username: "locked@agency.gov",
			Password: "Str0ng!Pass",
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeAccountLocked))
	})
}

func TestResolveFederatedLogin(t *testing.T) {
	ctx := context.Background()
	resolver, st, codec := newTestResolver(t)

	loginState, err := codec.Encode(linkstate.LinkState{Action: linkstate.ActionLogin, Redirect: "home"})
	require.NoError(t, err)

	t.Run("NewSubjectCreatesStaging", func(t *testing.T) {
		outcome, err := resolver.Resolve(ctx, FederatedAssertion{
			SubjectID: "sso-1",
			Email:     "new@agency.gov",
			State:     loginState,
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeStagingCreated, outcome.Kind)
		assert.NotEmpty(t, outcome.Staging.Hash)
		assert.Equal(t, "home", outcome.Redirect)
	})

	t.Run("RepeatLoginReusesStaging", func(t *testing.T) {
		first, err := resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-1", State: loginState})
		require.NoError(t, err)
		second, err := resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-1", State: loginState})
		require.NoError(t, err)
		assert.Equal(t, first.Staging.ID, second.Staging.ID,
			"repeat logins for one subject must not create a second staging identity")
	})

	t.Run("LinkedSubjectAuthenticates", func(t *testing.T) {
		user := seedUser(t, st, "linked@agency.gov", "Str0ng!Pass")
		require.NoError(t, st.LinkSubjectToUser(ctx, "sso-linked", user.ID))

		outcome, err := resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-linked", State: loginState})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAuthenticated, outcome.Kind)
		assert.Equal(t, user.ID, outcome.User.ID)
	})

	t.Run("TamperedState", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-1", State: "garbage"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
	})

	t.Run("FederatedDisabled", func(t *testing.T) {
		disabledResolver := NewResolver(st, codec, Config{FederatedEnabled: false})
		_, err := disabledResolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-1", State: loginState})
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized))
	})
}

func stageSubject(t *testing.T, resolver *Resolver, codec *linkstate.Codec, subjectID string) store.StagingIdentity {
	t.Helper()
	loginState, err := codec.Encode(linkstate.LinkState{Action: linkstate.ActionLogin})
	require.NoError(t, err)
	outcome, err := resolver.Resolve(context.Background(), FederatedAssertion{
		SubjectID: subjectID,
		State:     loginState,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeStagingCreated, outcome.Kind)
	return outcome.Staging
}

func TestResolveFederatedLink(t *testing.T) {
	ctx := context.Background()
	resolver, st, codec := newTestResolver(t)
	target := seedUser(t, st, "target@agency.gov", "Str0ng!Pass")

	linkStateFor := func(hash string) string {
		raw, err := codec.Encode(linkstate.LinkState{
			Action: linkstate.ActionLink,
			Data:   map[string]string{"h": hash},
		})
		require.NoError(t, err)
		return raw
	}

	t.Run("MergesStagingIntoTarget", func(t *testing.T) {
		staging := stageSubject(t, resolver, codec, "sso-merge")
		require.NoError(t, st.SetStagingTarget(ctx, staging.Hash, target.ID))

		outcome, err := resolver.Resolve(ctx, FederatedAssertion{
			SubjectID: "sso-merge",
			State:     linkStateFor(staging.Hash),
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAuthenticated, outcome.Kind)
		assert.Equal(t, target.ID, outcome.User.ID)

		// The staging record is retired and the subject now logs straight in.
		loginState, err := codec.Encode(linkstate.LinkState{Action: linkstate.ActionLogin})
		require.NoError(t, err)
		again, err := resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-merge", State: loginState})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAuthenticated, again.Kind)
		assert.Equal(t, target.ID, again.User.ID)
	})

	t.Run("UnknownHashExpired", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, FederatedAssertion{
			SubjectID: "sso-any",
			State:     linkStateFor("no-such-hash"),
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeLinkExpired))
	})

	t.Run("MissingHashExpired", func(t *testing.T) {
		raw, err := codec.Encode(linkstate.LinkState{Action: linkstate.ActionLink})
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, FederatedAssertion{SubjectID: "sso-any", State: raw})
		assert.True(t, errors.IsCode(err, errors.ErrCodeLinkExpired))
	})

	t.Run("SubjectMismatchNotAuthorized", func(t *testing.T) {
		staging := stageSubject(t, resolver, codec, "sso-victim")
		require.NoError(t, st.SetStagingTarget(ctx, staging.Hash, target.ID))

		_, err := resolver.Resolve(ctx, FederatedAssertion{
			SubjectID: "sso-attacker",
			State:     linkStateFor(staging.Hash),
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotAuthorized))
	})

	t.Run("NoTargetExpired", func(t *testing.T) {
		staging := stageSubject(t, resolver, codec, "sso-untargeted")

		_, err := resolver.Resolve(ctx, FederatedAssertion{
			SubjectID: "sso-untargeted",
			State:     linkStateFor(staging.Hash),
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeLinkExpired))
	})

	t.Run("ConcurrentLinkExactlyOneWins", func(t *testing.T) {
		staging := stageSubject(t, resolver, codec, "sso-race")
		require.NoError(t, st.SetStagingTarget(ctx, staging.Hash, target.ID))
		raw := linkStateFor(staging.Hash)

		var wg sync.WaitGroup
		outcomes := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, outcomes[i] = resolver.Resolve(ctx, FederatedAssertion{
					SubjectID: "sso-race",
					State:     raw,
				})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range outcomes {
			if err == nil {
				wins++
			} else {
				assert.True(t, errors.IsCode(err, errors.ErrCodeLinkExpired),
					"the losing racer must observe an expired link")
			}
		}
		assert.Equal(t, 1, wins, "exactly one concurrent link resolution may succeed")
	})
}
