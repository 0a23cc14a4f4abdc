package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role grants a fixed permission set within a single business.
type Role string

const (
	// RoleOwner created the business (i.e. everything, incl. team management)
	RoleOwner Role = "owner"
	// RoleManager runs day to day operations (i.e. add, delete transactions)
	RoleManager Role = "manager"
	// RoleEmployee records transactions
	RoleEmployee Role = "employee"
	// RoleAccountant records transactions, read oriented otherwise
	RoleAccountant Role = "accountant"
	// RoleNone means no active membership was found
	RoleNone Role = ""
)

// Identity is an authenticated end-user account.
type Identity struct {
	bun.BaseModel  `bun:"table:identities,alias:idn"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	AvatarURL      string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	OAuthProvider  string     `bun:"oauth_provider" json:"oauth_provider,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// DisplayName is what screens show for the signed in account.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	name := i.FirstName
	if i.LastName != "" {
		if name != "" {
			name += " "
		}
		name += i.LastName
	}
	if name == "" {
		return i.Email
	}
	return name
}

// Business is owned by exactly one identity but may carry many active
// memberships.
type Business struct {
	bun.BaseModel `bun:"table:businesses,alias:biz"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Description   string     `bun:"description" json:"description,omitempty"`
	BusinessType  string     `bun:"business_type" json:"business_type,omitempty"`
	OwnerID       uuid.UUID  `bun:"owner_id,notnull,type:uuid" json:"owner_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// BusinessMembership is the (identity, business, role) relationship that
// grants access. Removal deactivates the row, it never deletes it.
type BusinessMembership struct {
	bun.BaseModel `bun:"table:business_memberships,alias:bm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	IdentityID    uuid.UUID  `bun:"identity_id,notnull,type:uuid" json:"identity_id,omitempty"`
	BusinessID    uuid.UUID  `bun:"business_id,notnull,type:uuid" json:"business_id,omitempty"`
	Role          Role       `bun:"member_role,notnull" json:"member_role,omitempty"`
	Active        bool       `bun:"is_active" json:"is_active,omitempty"`
	JoinedAt      *time.Time `bun:"joined_at,nullzero" json:"joined_at,omitempty"`
	Business      *Business  `bun:"rel:belongs-to,join:business_id=id" json:"business,omitempty"`
	Identity      *Identity  `bun:"rel:belongs-to,join:identity_id=id" json:"identity,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// InvitationStatus tracks an invitation through its lifecycle
type InvitationStatus = string

const (
	// InvitationPending invite sent, not yet accepted
	InvitationPending InvitationStatus = "pending"
	// InvitationAccepted membership was created from the invite
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationRevoked withdrawn before acceptance
	InvitationRevoked InvitationStatus = "revoked"
	// InvitationExpired the acceptance window lapsed
	InvitationExpired InvitationStatus = "expired"
)

// Invitation asks an email address to join a business with a given role.
type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	BusinessID    uuid.UUID  `bun:"business_id,notnull,type:uuid" json:"business_id,omitempty"`
	Business      *Business  `bun:"rel:belongs-to,join:business_id=id" json:"business,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Role          Role       `bun:"member_role,notnull" json:"member_role,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	InvitedBy     uuid.UUID  `bun:"invited_by,notnull,type:uuid" json:"invited_by,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	AcceptedAt    *time.Time `bun:"accepted_at,nullzero" json:"accepted_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// BusinessSelection persists the "current business" choice so other parts
// of the app reading from storage see the same selection.
type BusinessSelection struct {
	bun.BaseModel `bun:"table:business_selections,alias:bsel"`
	IdentityID    uuid.UUID  `bun:"identity_id,pk,type:uuid" json:"identity_id,omitempty"`
	BusinessID    uuid.UUID  `bun:"business_id,notnull,type:uuid" json:"business_id,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
