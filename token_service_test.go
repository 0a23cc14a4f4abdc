package session_test

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/meetd-personal/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(expirationHours int) session.TokenService {
	return session.NewTokenService(
		[]byte("test-signing-key"),
		expirationHours,
		"go-session-test",
		[]string{"test-app"},
		nil,
	)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := newTestTokenService(72)
	identity := newTestIdentity("claims@example.com")

	raw, err := svc.Generate(identity, map[string]string{
		"biz-1": "owner",
		"biz-2": "employee",
	})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, identity.ID.String(), claims.IdentityID())
	assert.Equal(t, "claims@example.com", claims.Email)
	assert.Equal(t, session.RoleOwner, claims.RoleFor("biz-1"))
	assert.Equal(t, session.RoleEmployee, claims.RoleFor("biz-2"))
	assert.Equal(t, "go-session-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "every token carries a unique id")
	assert.True(t, claims.Expires().After(claims.IssuedAt()))
}

func TestNewTokenServiceFromConfig(t *testing.T) {
	cfg := testConfig{
		signingKey:      "config-signing-key",
		tokenExpiration: 24,
		issuer:          "go-session-test",
		audience:        []string{"test-app"},
	}

	svc := session.NewTokenServiceFromConfig(cfg, nil)
	identity := newTestIdentity("cfg@example.com")

	raw, err := svc.Generate(identity, nil)
	require.NoError(t, err)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "go-session-test", claims.Issuer)
	assert.Equal(t, identity.ID.String(), claims.IdentityID())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceRejectsNilIdentity(t *testing.T) {
	svc := newTestTokenService(72)

	_, err := svc.Generate(nil, nil)
	assert.Error(t, err)
}

func TestTokenServiceExpiredToken(t *testing.T) {
	svc := newTestTokenService(-1)
	identity := newTestIdentity("expired@example.com")

	raw, err := svc.Generate(identity, nil)
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeTokenExpired, richErr.TextCode)
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc := newTestTokenService(72)

	_, err := svc.Validate("not-a-token")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeTokenMalformed, richErr.TextCode)
}

func TestTokenServiceRejectsForeignKey(t *testing.T) {
	minter := newTestTokenService(72)
	verifier := session.NewTokenService(
		[]byte("a-different-key"),
		72,
		"go-session-test",
		[]string{"test-app"},
		nil,
	)

	raw, err := minter.Generate(newTestIdentity("foreign@example.com"), nil)
	require.NoError(t, err)

	_, err = verifier.Validate(raw)
	assert.Error(t, err)
}
