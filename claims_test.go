package session_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/meetd-personal/go-session"
	"github.com/stretchr/testify/assert"
)

func TestSessionClaimsIdentityID(t *testing.T) {
	claims := &session.SessionClaims{UID: "uid-1"}
	claims.Subject = "sub-1"
	assert.Equal(t, "uid-1", claims.IdentityID())

	claims = &session.SessionClaims{}
	claims.Subject = "sub-1"
	assert.Equal(t, "sub-1", claims.IdentityID())
}

func TestSessionClaimsRoleFor(t *testing.T) {
	claims := &session.SessionClaims{
		Businesses: map[string]string{
			"biz-1": "owner",
			"biz-2": "superuser",
		},
	}

	assert.Equal(t, session.RoleOwner, claims.RoleFor("biz-1"))
	assert.Equal(t, session.RoleNone, claims.RoleFor("biz-2"), "unknown role strings degrade to no role")
	assert.Equal(t, session.RoleNone, claims.RoleFor("biz-3"))

	assert.True(t, claims.HasBusiness("biz-1"))
	assert.True(t, claims.HasBusiness("biz-2"))
	assert.False(t, claims.HasBusiness("biz-3"))
}

func TestSessionClaimsTimes(t *testing.T) {
	claims := &session.SessionClaims{}
	assert.True(t, claims.Expires().IsZero())
	assert.True(t, claims.IssuedAt().IsZero())

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(testTime()),
		IssuedAt:  jwt.NewNumericDate(testTime()),
	}
	assert.Equal(t, testTime().Unix(), claims.Expires().Unix())
	assert.Equal(t, testTime().Unix(), claims.IssuedAt().Unix())
}
