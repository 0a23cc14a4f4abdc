package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the JWT payload minted for a signed in identity. The
// Businesses map carries business id -> role so a restored session can be
// re-derived without a round trip.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID        string            `json:"uid,omitempty"`
	Email      string            `json:"email,omitempty"`
	Businesses map[string]string `json:"biz,omitempty"` // business id -> role
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// IdentityID returns the identity the token was minted for.
func (c *SessionClaims) IdentityID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// RoleFor returns the role carried for a business, RoleNone when the
// token knows nothing about it.
func (c *SessionClaims) RoleFor(businessID string) Role {
	if raw, ok := c.Businesses[businessID]; ok {
		if role, valid := ParseRole(raw); valid {
			return role
		}
	}
	return RoleNone
}

// HasBusiness reports whether the token carries a membership for the
// business.
func (c *SessionClaims) HasBusiness(businessID string) bool {
	_, ok := c.Businesses[businessID]
	return ok
}

// Expires returns the expiration time, zero when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time, zero when absent.
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
