package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider struct {
	Provider
	name string
}

func (p namedProvider) Name() string { return p.name }

func TestRegistry(t *testing.T) {
	google := namedProvider{name: "google"}
	apple := namedProvider{name: "apple"}

	r := NewRegistry(google, nil, apple)

	got, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", got.Name())

	_, err = r.Get("facebook")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	assert.ElementsMatch(t, []string{"google", "apple"}, r.Names())

	r.Register(namedProvider{name: "facebook"})
	_, err = r.Get("facebook")
	assert.NoError(t, err)
}

func TestRegistryZeroValue(t *testing.T) {
	var r *Registry

	_, err := r.Get("google")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Nil(t, r.Names())
}

func TestApplyAuthCodeOptions(t *testing.T) {
	cfg := ApplyAuthCodeOptions([]string{"openid", "email"},
		WithScopes("profile"),
		WithPKCE("challenge-value", "S256"),
		WithPrompt("select_account"),
		nil,
	)

	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Scopes)
	assert.Equal(t, "challenge-value", cfg.CodeChallenge)
	assert.Equal(t, "S256", cfg.CodeChallengeMethod)
	assert.Equal(t, "select_account", cfg.Prompt)
}

func TestApplyExchangeOptions(t *testing.T) {
	cfg := ApplyExchangeOptions(WithCodeVerifier("verifier"))
	assert.Equal(t, "verifier", cfg.CodeVerifier)

	cfg = ApplyExchangeOptions()
	assert.Empty(t, cfg.CodeVerifier)
}
