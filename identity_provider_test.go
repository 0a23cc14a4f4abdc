package session_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	session "github.com/meetd-personal/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityTrackerAdapterDelegates(t *testing.T) {
	ident := newTestIdentity("tracked@example.com")
	attempts := 0
	successes := 0

	repo := &stubIdentities{
		getByIdentifier: func(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*session.Identity, error) {
			assert.Equal(t, "tracked@example.com", identifier)
			return ident, nil
		},
		trackAttempted: func(ctx context.Context, identity *session.Identity) error {
			attempts++
			return nil
		},
		trackSuccessful: func(ctx context.Context, identity *session.Identity) error {
			successes++
			return nil
		},
		updateProfile: func(ctx context.Context, id uuid.UUID, update session.ProfileUpdate) (*session.Identity, error) {
			assert.Equal(t, ident.ID, id)
			return ident, nil
		},
	}

	var tracker session.IdentityTracker = session.NewIdentityTracker(repo)

	got, err := tracker.GetByIdentifier(context.Background(), "tracked@example.com")
	require.NoError(t, err)
	assert.Same(t, ident, got)

	require.NoError(t, tracker.TrackAttemptedLogin(context.Background(), ident))
	require.NoError(t, tracker.TrackSuccessfulLogin(context.Background(), ident))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, successes)

	name := "Updated"
	updated, err := tracker.UpdateProfile(context.Background(), ident.ID, session.ProfileUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Same(t, ident, updated)
}

func TestSignupHonorsConfigEmailConfirmation(t *testing.T) {
	registrar := &mockRegistrar{
		registerFn: func(ctx context.Context, data session.SignupData) (*session.Identity, *session.Business, error) {
			identity := newTestIdentity(data.Email)
			identity.EmailValidated = false
			return identity, nil, nil
		},
	}

	provider := session.NewCredentialProvider(
		session.NewIdentityTracker(&stubIdentities{}),
		&mockMembershipStore{},
		newTestTokenService(72),
		session.WithAccountRegistrar(registrar),
		session.WithConfig(testConfig{requireEmailConfirmation: true}),
	)

	outcome, err := provider.Signup(context.Background(), session.SignupData{Email: "pending@example.com"})
	require.NoError(t, err)

	assert.Empty(t, outcome.Token)
	assert.Equal(t, "Account created. Check your email to confirm before signing in.", outcome.Message)
	require.NotNil(t, outcome.Identity)
}

func TestSignupWithoutConfirmationIssuesSession(t *testing.T) {
	registrar := &mockRegistrar{
		registerFn: func(ctx context.Context, data session.SignupData) (*session.Identity, *session.Business, error) {
			return newTestIdentity(data.Email), nil, nil
		},
	}

	provider := session.NewCredentialProvider(
		session.NewIdentityTracker(&stubIdentities{}),
		&mockMembershipStore{},
		newTestTokenService(72),
		session.WithAccountRegistrar(registrar),
		session.WithConfig(testConfig{requireEmailConfirmation: false}),
	)

	outcome, err := provider.Signup(context.Background(), session.SignupData{Email: "direct@example.com"})
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.Token)
	assert.Empty(t, outcome.Message)
}
