package session

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/meetd-personal/go-session/oauth"
)

// MaxLoginAttempts is the maximum number of attempts an identity gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// IdentityTracker is the store we need to authenticate identities.
type IdentityTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Identity, error)
	TrackAttemptedLogin(ctx context.Context, identity *Identity) error
	TrackSuccessfulLogin(ctx context.Context, identity *Identity) error
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*Identity, error)
}

// NewIdentityTracker adapts the Identities repository to the tracker
// surface the credential provider needs. The repository's GetByIdentifier
// takes variadic criteria, so the interfaces do not line up directly.
func NewIdentityTracker(repo Identities) IdentityTracker {
	return identityTrackerAdapter{repo: repo}
}

type identityTrackerAdapter struct {
	repo Identities
}

func (a identityTrackerAdapter) GetByIdentifier(ctx context.Context, identifier string) (*Identity, error) {
	return a.repo.GetByIdentifier(ctx, identifier)
}

func (a identityTrackerAdapter) TrackAttemptedLogin(ctx context.Context, identity *Identity) error {
	return a.repo.TrackAttemptedLogin(ctx, identity)
}

func (a identityTrackerAdapter) TrackSuccessfulLogin(ctx context.Context, identity *Identity) error {
	return a.repo.TrackSuccessfulLogin(ctx, identity)
}

func (a identityTrackerAdapter) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*Identity, error) {
	return a.repo.UpdateProfile(ctx, id, update)
}

// AccountRegistrar handles new account creation. RegisterAccount runs the
// signup transaction; ProvisionOAuthIdentity resolves or creates the
// identity matching a verified provider profile.
type AccountRegistrar interface {
	RegisterAccount(ctx context.Context, data SignupData) (*Identity, *Business, error)
	ProvisionOAuthIdentity(ctx context.Context, profile *oauth.Profile) (*Identity, error)
}

// CredentialProvider is the default IdentityProvider. It authenticates
// against the identity store, issues session JWTs and drives the
// configured OAuth providers.
type CredentialProvider struct {
	tracker     IdentityTracker
	store       MembershipStore
	tokens      TokenService
	tokenStore  TokenStore
	registrar   AccountRegistrar
	oauthFlows  *oauth.Registry
	oauthSource OAuthTokenSource

	requireEmailConfirmation bool
	confirmationMessage      string

	logger Logger
}

var _ IdentityProvider = (*CredentialProvider)(nil)

type CredentialProviderOption func(*CredentialProvider)

// WithTokenStore persists issued tokens so sessions survive app restarts.
func WithTokenStore(store TokenStore) CredentialProviderOption {
	return func(p *CredentialProvider) {
		p.tokenStore = store
	}
}

// WithAccountRegistrar wires the signup/provisioning handler.
func WithAccountRegistrar(registrar AccountRegistrar) CredentialProviderOption {
	return func(p *CredentialProvider) {
		p.registrar = registrar
	}
}

// WithOAuthRegistry wires the configured OAuth providers.
func WithOAuthRegistry(registry *oauth.Registry) CredentialProviderOption {
	return func(p *CredentialProvider) {
		p.oauthFlows = registry
	}
}

// WithOAuthTokenSource wires the platform native authorize step used by
// SignInWithApple/SignInWithGoogle.
func WithOAuthTokenSource(source OAuthTokenSource) CredentialProviderOption {
	return func(p *CredentialProvider) {
		p.oauthSource = source
	}
}

// WithConfig applies the provider options a Config carries.
func WithConfig(cfg Config) CredentialProviderOption {
	return func(p *CredentialProvider) {
		if cfg != nil {
			p.requireEmailConfirmation = cfg.GetRequireEmailConfirmation()
		}
	}
}

// WithRequireEmailConfirmation holds new signups in a pending state until
// the email is confirmed.
func WithRequireEmailConfirmation(required bool) CredentialProviderOption {
	return func(p *CredentialProvider) {
		p.requireEmailConfirmation = required
	}
}

// WithCredentialProviderLogger overrides the logger.
func WithCredentialProviderLogger(logger Logger) CredentialProviderOption {
	return func(p *CredentialProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewCredentialProvider creates the default IdentityProvider.
func NewCredentialProvider(tracker IdentityTracker, store MembershipStore, tokens TokenService, opts ...CredentialProviderOption) *CredentialProvider {
	p := &CredentialProvider{
		tracker:             tracker,
		store:               store,
		tokens:              tokens,
		confirmationMessage: "Account created. Check your email to confirm before signing in.",
		logger:              defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// RestoreSession validates the stored token and rebuilds the outcome a
// fresh login would have produced. A missing or invalid token clears the
// store and reports ErrNoStoredSession semantics to the caller.
func (p *CredentialProvider) RestoreSession(ctx context.Context) (*AuthOutcome, error) {
	if p.tokenStore == nil {
		return nil, ErrNoStoredSession
	}

	raw, err := p.tokenStore.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load stored session")
	}
	if raw == "" {
		return nil, ErrNoStoredSession
	}

	claims, err := p.tokens.Validate(raw)
	if err != nil {
		if clearErr := p.tokenStore.Clear(ctx); clearErr != nil {
			p.logger.Warn("failed to clear invalid stored session", "error", clearErr)
		}
		return nil, err
	}

	identity, err := p.tracker.GetByIdentifier(ctx, claims.IdentityID())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrNoStoredSession
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load identity for stored session")
	}

	businesses, err := p.reachableBusinesses(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	return &AuthOutcome{
		Identity:   identity,
		Token:      raw,
		Businesses: businesses,
	}, nil
}

// Login verifies credentials and issues a fresh session.
func (p *CredentialProvider) Login(ctx context.Context, creds Credentials) (*AuthOutcome, error) {
	identity, err := p.VerifyIdentity(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}

	return p.issueSession(ctx, identity)
}

// Signup registers a new account. When email confirmation is required the
// outcome carries a message and no token.
func (p *CredentialProvider) Signup(ctx context.Context, data SignupData) (*AuthOutcome, error) {
	if p.registrar == nil {
		return nil, errors.New("no account registrar configured", errors.CategoryInternal)
	}

	identity, _, err := p.registrar.RegisterAccount(ctx, data)
	if err != nil {
		return nil, err
	}

	if p.requireEmailConfirmation && !identity.EmailValidated {
		return &AuthOutcome{
			Identity: identity,
			Message:  p.confirmationMessage,
		}, nil
	}

	return p.issueSession(ctx, identity)
}

// SignInWithApple runs the native Apple flow end to end.
func (p *CredentialProvider) SignInWithApple(ctx context.Context) (*AuthOutcome, error) {
	return p.signInWithPlatform(ctx, "apple")
}

// SignInWithGoogle runs the native Google flow end to end.
func (p *CredentialProvider) SignInWithGoogle(ctx context.Context) (*AuthOutcome, error) {
	return p.signInWithPlatform(ctx, "google")
}

func (p *CredentialProvider) signInWithPlatform(ctx context.Context, provider string) (*AuthOutcome, error) {
	if p.oauthSource == nil {
		return nil, errors.New("no oauth token source configured", errors.CategoryInternal).
			WithTextCode(TextCodeOAuthProviderNotSet)
	}

	data, err := p.oauthSource.Authorize(ctx, provider)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "oauth authorization failed").
			WithMetadata(map[string]any{"provider": provider})
	}

	return p.SignInWithOAuthData(ctx, provider, data)
}

// SignInWithOAuthData verifies provider artifacts and resolves them to a
// local identity. Mobile flows hand us an ID token, web flows a code.
func (p *CredentialProvider) SignInWithOAuthData(ctx context.Context, providerName string, data OAuthData) (*AuthOutcome, error) {
	if p.oauthFlows == nil {
		return nil, errors.New("no oauth providers configured", errors.CategoryInternal).
			WithTextCode(TextCodeOAuthProviderNotSet)
	}
	if p.registrar == nil {
		return nil, errors.New("no account registrar configured", errors.CategoryInternal)
	}

	provider, err := p.oauthFlows.Get(providerName)
	if err != nil {
		return nil, err
	}

	profile, err := p.resolveProfile(ctx, provider, data)
	if err != nil {
		return nil, err
	}

	if profile.Email == "" {
		return nil, errors.New("provider returned no email", errors.CategoryAuth).
			WithMetadata(map[string]any{"provider": providerName})
	}
	if !profile.EmailVerified {
		return nil, oauth.ErrEmailNotVerified
	}

	identity, err := p.registrar.ProvisionOAuthIdentity(ctx, profile)
	if err != nil {
		return nil, err
	}

	return p.issueSession(ctx, identity)
}

func (p *CredentialProvider) resolveProfile(ctx context.Context, provider oauth.Provider, data OAuthData) (*oauth.Profile, error) {
	switch {
	case data.IDToken != "":
		return provider.VerifyIDToken(ctx, data.IDToken, data.Nonce)
	case data.Code != "":
		token, err := provider.Exchange(ctx, data.Code)
		if err != nil {
			return nil, err
		}
		if token.IDToken != "" {
			return provider.VerifyIDToken(ctx, token.IDToken, data.Nonce)
		}
		return provider.UserInfo(ctx, token)
	case data.AccessToken != "":
		return provider.UserInfo(ctx, &oauth.Token{AccessToken: data.AccessToken})
	default:
		return nil, errors.New("oauth data carries no usable artifact", errors.CategoryBadInput)
	}
}

// Logout drops the stored token. Best effort, a missing store is fine.
func (p *CredentialProvider) Logout(ctx context.Context) error {
	if p.tokenStore == nil {
		return nil
	}
	return p.tokenStore.Clear(ctx)
}

// UpdateProfile persists the allowed profile edits and returns the fresh
// identity record.
func (p *CredentialProvider) UpdateProfile(ctx context.Context, identityID uuid.UUID, fields ProfileUpdate) (*Identity, error) {
	return p.tracker.UpdateProfile(ctx, identityID, fields)
}

// VerifyIdentity will find the identity, compare the password, and return
// the record. Attempt tracking mirrors what the columns persist: failures
// bump the counter, success resets it.
func (p *CredentialProvider) VerifyIdentity(ctx context.Context, identifier, password string) (*Identity, error) {
	identity, err := p.tracker.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve identity during verification")
	}

	if identity.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*identity.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			identity.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if identity.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, identity.PasswordHash); err != nil {
		// We have to increment the login_attempts counter and login_attempt_at
		if err2 := p.tracker.TrackAttemptedLogin(ctx, identity); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and login_attempt_at
	if err := p.tracker.TrackSuccessfulLogin(ctx, identity); err != nil {
		p.logger.Error("failed to track successful login", "error", err)
	}

	return identity, nil
}

// issueSession mints the JWT, persists it and assembles the outcome the
// state machine consumes.
func (p *CredentialProvider) issueSession(ctx context.Context, identity *Identity) (*AuthOutcome, error) {
	memberships, err := p.store.GetMembershipsForIdentity(ctx, identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load memberships")
	}

	businesses := make([]*Business, 0, len(memberships))
	roles := make(map[string]string, len(memberships))
	for _, m := range memberships {
		if m == nil || !m.Active {
			continue
		}
		roles[m.BusinessID.String()] = string(m.Role)
		if m.Business != nil {
			businesses = append(businesses, m.Business)
		}
	}

	token, err := p.tokens.Generate(identity, roles)
	if err != nil {
		return nil, err
	}

	if p.tokenStore != nil {
		if err := p.tokenStore.Save(ctx, token); err != nil {
			p.logger.Warn("failed to persist session token", "error", err)
		}
	}

	return &AuthOutcome{
		Identity:   identity,
		Token:      token,
		Businesses: businesses,
	}, nil
}

func (p *CredentialProvider) reachableBusinesses(ctx context.Context, identityID uuid.UUID) ([]*Business, error) {
	memberships, err := p.store.GetMembershipsForIdentity(ctx, identityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load memberships")
	}

	businesses := make([]*Business, 0, len(memberships))
	for _, m := range memberships {
		if m == nil || !m.Active || m.Business == nil {
			continue
		}
		businesses = append(businesses, m.Business)
	}

	return businesses, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
