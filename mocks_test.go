package session_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	session "github.com/meetd-personal/go-session"
	"github.com/meetd-personal/go-session/oauth"
	"github.com/uptrace/bun"
)

type mockIdentityProvider struct {
	restoreFn func(ctx context.Context) (*session.AuthOutcome, error)
	loginFn   func(ctx context.Context, creds session.Credentials) (*session.AuthOutcome, error)
	signupFn  func(ctx context.Context, data session.SignupData) (*session.AuthOutcome, error)
	oauthFn   func(ctx context.Context, provider string, data session.OAuthData) (*session.AuthOutcome, error)
	logoutFn  func(ctx context.Context) error
	updateFn  func(ctx context.Context, identityID uuid.UUID, fields session.ProfileUpdate) (*session.Identity, error)

	loginCalls  int
	signupCalls int
	logoutCalls int
}

var _ session.IdentityProvider = (*mockIdentityProvider)(nil)

func (m *mockIdentityProvider) RestoreSession(ctx context.Context) (*session.AuthOutcome, error) {
	if m.restoreFn == nil {
		return nil, session.ErrNoStoredSession
	}
	return m.restoreFn(ctx)
}

func (m *mockIdentityProvider) Login(ctx context.Context, creds session.Credentials) (*session.AuthOutcome, error) {
	m.loginCalls++
	if m.loginFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.loginFn(ctx, creds)
}

func (m *mockIdentityProvider) Signup(ctx context.Context, data session.SignupData) (*session.AuthOutcome, error) {
	m.signupCalls++
	if m.signupFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.signupFn(ctx, data)
}

func (m *mockIdentityProvider) SignInWithApple(ctx context.Context) (*session.AuthOutcome, error) {
	if m.oauthFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.oauthFn(ctx, "apple", session.OAuthData{})
}

func (m *mockIdentityProvider) SignInWithGoogle(ctx context.Context) (*session.AuthOutcome, error) {
	if m.oauthFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.oauthFn(ctx, "google", session.OAuthData{})
}

func (m *mockIdentityProvider) SignInWithOAuthData(ctx context.Context, provider string, data session.OAuthData) (*session.AuthOutcome, error) {
	if m.oauthFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.oauthFn(ctx, provider, data)
}

func (m *mockIdentityProvider) Logout(ctx context.Context) error {
	m.logoutCalls++
	if m.logoutFn == nil {
		return nil
	}
	return m.logoutFn(ctx)
}

func (m *mockIdentityProvider) UpdateProfile(ctx context.Context, identityID uuid.UUID, fields session.ProfileUpdate) (*session.Identity, error) {
	if m.updateFn == nil {
		return nil, session.ErrMissingIdentity
	}
	return m.updateFn(ctx, identityID, fields)
}

type roleLookup struct {
	identityID uuid.UUID
	businessID uuid.UUID
}

type mockMembershipStore struct {
	membershipsFn   func(ctx context.Context, identityID uuid.UUID) ([]*session.BusinessMembership, error)
	relationshipsFn func(ctx context.Context, identityID uuid.UUID) (*session.BusinessRelationships, error)
	roleFn          func(ctx context.Context, identityID, businessID uuid.UUID) (session.Role, error)
	setCurrentFn    func(ctx context.Context, identityID, businessID uuid.UUID) error
	clearFn         func(ctx context.Context, identityID uuid.UUID) error

	roleLookups  []roleLookup
	setCurrent   []roleLookup
	clearedFor   []uuid.UUID
	refreshCalls int
}

var _ session.MembershipStore = (*mockMembershipStore)(nil)

func (m *mockMembershipStore) GetMembershipsForIdentity(ctx context.Context, identityID uuid.UUID) ([]*session.BusinessMembership, error) {
	m.refreshCalls++
	if m.membershipsFn == nil {
		return nil, nil
	}
	return m.membershipsFn(ctx, identityID)
}

func (m *mockMembershipStore) GetBusinessRelationships(ctx context.Context, identityID uuid.UUID) (*session.BusinessRelationships, error) {
	if m.relationshipsFn == nil {
		return &session.BusinessRelationships{}, nil
	}
	return m.relationshipsFn(ctx, identityID)
}

func (m *mockMembershipStore) GetMembershipRole(ctx context.Context, identityID, businessID uuid.UUID) (session.Role, error) {
	m.roleLookups = append(m.roleLookups, roleLookup{identityID: identityID, businessID: businessID})
	if m.roleFn == nil {
		return session.RoleNone, session.ErrMembershipNotFound
	}
	return m.roleFn(ctx, identityID, businessID)
}

func (m *mockMembershipStore) SetCurrentBusiness(ctx context.Context, identityID, businessID uuid.UUID) error {
	m.setCurrent = append(m.setCurrent, roleLookup{identityID: identityID, businessID: businessID})
	if m.setCurrentFn == nil {
		return nil
	}
	return m.setCurrentFn(ctx, identityID, businessID)
}

func (m *mockMembershipStore) ClearCurrentSession(ctx context.Context, identityID uuid.UUID) error {
	m.clearedFor = append(m.clearedFor, identityID)
	if m.clearFn == nil {
		return nil
	}
	return m.clearFn(ctx, identityID)
}

type recordingSink struct {
	events []session.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event session.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) eventTypes() []session.ActivityEventType {
	types := make([]session.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// stub repositories embed the real interfaces and override only what the
// handlers under test call; anything else panics on a nil interface.

type stubIdentities struct {
	session.Identities
	createTx          func(ctx context.Context, tx bun.IDB, record *session.Identity, criteria ...repository.InsertCriteria) (*session.Identity, error)
	getByIdentifier   func(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*session.Identity, error)
	getByIdentifierTx func(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*session.Identity, error)
	getOrRegisterTx   func(ctx context.Context, tx bun.IDB, record *session.Identity) (*session.Identity, error)
	trackAttempted    func(ctx context.Context, identity *session.Identity) error
	trackSuccessful   func(ctx context.Context, identity *session.Identity) error
	updateProfile     func(ctx context.Context, id uuid.UUID, update session.ProfileUpdate) (*session.Identity, error)
}

func (s *stubIdentities) CreateTx(ctx context.Context, tx bun.IDB, record *session.Identity, criteria ...repository.InsertCriteria) (*session.Identity, error) {
	return s.createTx(ctx, tx, record, criteria...)
}

func (s *stubIdentities) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*session.Identity, error) {
	return s.getByIdentifierTx(ctx, tx, identifier, criteria...)
}

func (s *stubIdentities) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *session.Identity) (*session.Identity, error) {
	return s.getOrRegisterTx(ctx, tx, record)
}

func (s *stubIdentities) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*session.Identity, error) {
	return s.getByIdentifier(ctx, identifier, criteria...)
}

func (s *stubIdentities) TrackAttemptedLogin(ctx context.Context, identity *session.Identity) error {
	return s.trackAttempted(ctx, identity)
}

func (s *stubIdentities) TrackSuccessfulLogin(ctx context.Context, identity *session.Identity) error {
	return s.trackSuccessful(ctx, identity)
}

func (s *stubIdentities) UpdateProfile(ctx context.Context, id uuid.UUID, update session.ProfileUpdate) (*session.Identity, error) {
	return s.updateProfile(ctx, id, update)
}

type mockRegistrar struct {
	registerFn  func(ctx context.Context, data session.SignupData) (*session.Identity, *session.Business, error)
	provisionFn func(ctx context.Context, profile *oauth.Profile) (*session.Identity, error)
}

var _ session.AccountRegistrar = (*mockRegistrar)(nil)

func (m *mockRegistrar) RegisterAccount(ctx context.Context, data session.SignupData) (*session.Identity, *session.Business, error) {
	if m.registerFn == nil {
		return nil, nil, session.ErrInvalidCredentials
	}
	return m.registerFn(ctx, data)
}

func (m *mockRegistrar) ProvisionOAuthIdentity(ctx context.Context, profile *oauth.Profile) (*session.Identity, error) {
	if m.provisionFn == nil {
		return nil, session.ErrInvalidCredentials
	}
	return m.provisionFn(ctx, profile)
}

type testConfig struct {
	signingKey               string
	tokenExpiration          int
	issuer                   string
	audience                 []string
	requireEmailConfirmation bool
}

var _ session.Config = testConfig{}

func (c testConfig) GetSigningKey() string             { return c.signingKey }
func (c testConfig) GetTokenExpiration() int           { return c.tokenExpiration }
func (c testConfig) GetIssuer() string                 { return c.issuer }
func (c testConfig) GetAudience() []string             { return c.audience }
func (c testConfig) GetRequireEmailConfirmation() bool { return c.requireEmailConfirmation }

type stubBusinesses struct {
	session.Businesses
	createTx func(ctx context.Context, tx bun.IDB, record *session.Business, criteria ...repository.InsertCriteria) (*session.Business, error)
}

func (s *stubBusinesses) CreateTx(ctx context.Context, tx bun.IDB, record *session.Business, criteria ...repository.InsertCriteria) (*session.Business, error) {
	return s.createTx(ctx, tx, record, criteria...)
}

type stubMemberships struct {
	session.Memberships
	createTx func(ctx context.Context, tx bun.IDB, record *session.BusinessMembership, criteria ...repository.InsertCriteria) (*session.BusinessMembership, error)
}

func (s *stubMemberships) CreateTx(ctx context.Context, tx bun.IDB, record *session.BusinessMembership, criteria ...repository.InsertCriteria) (*session.BusinessMembership, error) {
	return s.createTx(ctx, tx, record, criteria...)
}

type stubInvitations struct {
	repository.Repository[*session.Invitation]
	createTx          func(ctx context.Context, tx bun.IDB, record *session.Invitation, criteria ...repository.InsertCriteria) (*session.Invitation, error)
	getByIdentifierTx func(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*session.Invitation, error)
	updateTx          func(ctx context.Context, tx bun.IDB, record *session.Invitation, criteria ...repository.UpdateCriteria) (*session.Invitation, error)
}

func (s *stubInvitations) CreateTx(ctx context.Context, tx bun.IDB, record *session.Invitation, criteria ...repository.InsertCriteria) (*session.Invitation, error) {
	return s.createTx(ctx, tx, record, criteria...)
}

func (s *stubInvitations) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*session.Invitation, error) {
	return s.getByIdentifierTx(ctx, tx, identifier, criteria...)
}

func (s *stubInvitations) UpdateTx(ctx context.Context, tx bun.IDB, record *session.Invitation, criteria ...repository.UpdateCriteria) (*session.Invitation, error) {
	return s.updateTx(ctx, tx, record, criteria...)
}

type stubRepoManager struct {
	identities  *stubIdentities
	businesses  *stubBusinesses
	memberships *stubMemberships
	invitations *stubInvitations
}

var _ session.RepositoryManager = (*stubRepoManager)(nil)

func (m *stubRepoManager) Validate() error { return nil }
func (m *stubRepoManager) MustValidate()   {}

func (m *stubRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(context.Context, bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *stubRepoManager) Identities() session.Identities {
	return m.identities
}

func (m *stubRepoManager) Businesses() session.Businesses {
	return m.businesses
}

func (m *stubRepoManager) Memberships() session.Memberships {
	return m.memberships
}

func (m *stubRepoManager) Invitations() repository.Repository[*session.Invitation] {
	return m.invitations
}

func testTime() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func newTestIdentity(email string) *session.Identity {
	return &session.Identity{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Test",
		LastName:  "Identity",
	}
}

func newTestBusiness(name string, owner uuid.UUID) *session.Business {
	return &session.Business{
		ID:      uuid.New(),
		Name:    name,
		OwnerID: owner,
	}
}
