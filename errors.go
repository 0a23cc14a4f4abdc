package session

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeMissingIdentity     = "SESSION_MISSING_IDENTITY"
	TextCodeActionInFlight      = "SESSION_ACTION_IN_FLIGHT"
	TextCodeMembershipNotFound  = "MEMBERSHIP_NOT_FOUND"
	TextCodeNoStoredSession     = "NO_STORED_SESSION"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts     = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired        = "SESSION_TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "SESSION_TOKEN_MALFORMED"
	TextCodeInvitationNotFound  = "INVITATION_NOT_FOUND"
	TextCodeInvitationExpired   = "INVITATION_EXPIRED"
	TextCodeInvalidRole         = "INVALID_ROLE"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeOAuthProviderNotSet = "OAUTH_PROVIDER_NOT_CONFIGURED"
)

// ErrMissingIdentity is returned when an operation that needs a signed in
// identity runs without one. Callers treat it as an ordering bug, not a
// user facing failure.
var ErrMissingIdentity = errors.New("no identity in session", errors.CategoryAuth).
	WithTextCode(TextCodeMissingIdentity).
	WithCode(errors.CodeUnauthorized)

// ErrActionInFlight tags the snapshot a caller gets back when it
// dispatches an authentication action while another is still running.
var ErrActionInFlight = errors.New("another authentication action is in flight", errors.CategoryConflict).
	WithTextCode(TextCodeActionInFlight).
	WithCode(errors.CodeConflict)

// ErrMembershipNotFound is returned when no active membership links the
// identity to the business.
var ErrMembershipNotFound = errors.New("no active membership for business", errors.CategoryNotFound).
	WithTextCode(TextCodeMembershipNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoStoredSession is returned by RestoreSession when no token survived
// the previous app run.
var ErrNoStoredSession = errors.New("no stored session", errors.CategoryAuth).
	WithTextCode(TextCodeNoStoredSession).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidCredentials is the uniform bad email/password error. It never
// says which of the two was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while the cooldown window is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a stored session token is past expiry.
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a session token cannot be decoded.
var ErrTokenMalformed = errors.New("session token malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrInvitationNotFound is returned when an invitation token matches no
// pending invitation.
var ErrInvitationNotFound = errors.New("invitation not found", errors.CategoryNotFound).
	WithTextCode(TextCodeInvitationNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvitationExpired is returned when the acceptance window has lapsed.
var ErrInvitationExpired = errors.New("invitation expired", errors.CategoryConflict).
	WithTextCode(TextCodeInvitationExpired).
	WithCode(errors.CodeConflict)

// ErrInvalidRole is returned when a role value is outside the enumeration.
var ErrInvalidRole = errors.New("unknown or invalid role", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword mirrors the bcrypt mismatch without leaking
// which account exists.
var ErrMismatchedHashAndPassword = ErrInvalidCredentials
