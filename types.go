package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Credentials is the payload for password based sign in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupData is the payload for account creation. BusinessName is optional;
// when present the initial business is created in the same transaction and
// the new identity becomes its owner.
type SignupData struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	BusinessName string `json:"business_name,omitempty"`
}

// OAuthData carries the artifacts a native OAuth flow hands back to us.
// Mobile clients usually hold an ID token; web flows hand over a code.
type OAuthData struct {
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Code        string `json:"code,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

// ProfileUpdate lists the identity fields that may be edited after signup.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// AuthOutcome is the uniform result shape every IdentityProvider operation
// returns on success. A populated Message with an empty Token signals an
// accepted signup that still requires email confirmation.
type AuthOutcome struct {
	Identity   *Identity
	Token      string
	Businesses []*Business
	Message    string
}

// IdentityProvider performs credential and OAuth verification and issues
// session tokens. The state machine treats it as opaque: it only consumes
// AuthOutcome values and converts errors into user facing state.
type IdentityProvider interface {
	RestoreSession(ctx context.Context) (*AuthOutcome, error)
	Login(ctx context.Context, creds Credentials) (*AuthOutcome, error)
	Signup(ctx context.Context, data SignupData) (*AuthOutcome, error)
	SignInWithApple(ctx context.Context) (*AuthOutcome, error)
	SignInWithGoogle(ctx context.Context) (*AuthOutcome, error)
	SignInWithOAuthData(ctx context.Context, provider string, data OAuthData) (*AuthOutcome, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, identityID uuid.UUID, fields ProfileUpdate) (*Identity, error)
}

// BusinessRelationships groups the businesses an identity can reach, split
// by how the access was granted.
type BusinessRelationships struct {
	Owned  []*Business
	Member []*Business
	All    []*Business
}

// MembershipStore is the persistence boundary for business memberships and
// the durable "current business" selection.
type MembershipStore interface {
	GetMembershipsForIdentity(ctx context.Context, identityID uuid.UUID) ([]*BusinessMembership, error)
	GetBusinessRelationships(ctx context.Context, identityID uuid.UUID) (*BusinessRelationships, error)
	GetMembershipRole(ctx context.Context, identityID, businessID uuid.UUID) (Role, error)
	SetCurrentBusiness(ctx context.Context, identityID, businessID uuid.UUID) error
	ClearCurrentSession(ctx context.Context, identityID uuid.UUID) error
}

// TokenStore holds the raw session token between app runs. On device this
// is backed by the keychain; tests use an in-memory implementation.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// OAuthTokenSource runs the interactive, platform native part of an OAuth
// flow and hands back whatever artifacts the platform produced.
type OAuthTokenSource interface {
	Authorize(ctx context.Context, provider string) (OAuthData, error)
}

// TokenService mints and validates session tokens.
type TokenService interface {
	Generate(identity *Identity, businessRoles map[string]string) (string, error)
	Validate(raw string) (*SessionClaims, error)
}

// Config holds session options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetRequireEmailConfirmation() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
