package jwtware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExtractors(t *testing.T) {
	extractors := GetExtractors("header:Authorization,cookie:jwt,query:auth_token,param:token")
	assert.Len(t, extractors, 4)

	extractors = GetExtractors(" header : Authorization , cookie : jwt ")
	assert.Len(t, extractors, 2)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig(Config{
		TokenValidator: TokenValidatorFunc(func(string) (SessionClaims, error) {
			return nil, nil
		}),
	})

	assert.Equal(t, "session", cfg.ContextKey)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, defaultTokenLookup, cfg.TokenLookup)
	assert.NotNil(t, cfg.SuccessHandler)
	assert.NotNil(t, cfg.ErrorHandler)
}

func TestGetDefaultConfigPanicsWithoutValidatorOrKeys(t *testing.T) {
	assert.Panics(t, func() {
		GetDefaultConfig(Config{})
	})
}

func TestValidateFallbackParsesSessionToken(t *testing.T) {
	key := []byte("test-signing-key")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "identity-1",
		"uid": "identity-1",
		"biz": map[string]any{"biz-1": "OWNER"},
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := token.SignedString(key)
	require.NoError(t, err)

	cfg := GetDefaultConfig(Config{
		SigningKey: SigningKey{JWTAlg: "HS256", Key: key},
	})

	claims, err := cfg.validate(raw)
	require.NoError(t, err)

	assert.Equal(t, "identity-1", claims.IdentityID())
	assert.True(t, claims.HasBusiness("biz-1"))
	assert.False(t, claims.HasBusiness("biz-2"))
	assert.False(t, claims.Expires().IsZero())
}

func TestValidateFallbackRejectsWrongAlg(t *testing.T) {
	key := []byte("test-signing-key")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "identity-1",
	})
	raw, err := token.SignedString(key)
	require.NoError(t, err)

	cfg := GetDefaultConfig(Config{
		SigningKey: SigningKey{JWTAlg: "RS256", Key: key},
	})

	_, err = cfg.validate(raw)
	assert.Error(t, err)
}

func TestParsedClaimsFallsBackToSubject(t *testing.T) {
	claims := parsedClaims{claims: jwt.MapClaims{"sub": "identity-2"}}
	assert.Equal(t, "identity-2", claims.IdentityID())
	assert.False(t, claims.HasBusiness("biz-1"))
	assert.True(t, claims.Expires().IsZero())
}
