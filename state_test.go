package session_test

import (
	"testing"

	"github.com/google/uuid"
	session "github.com/meetd-personal/go-session"
	"github.com/stretchr/testify/assert"
)

func TestNewSessionStateShape(t *testing.T) {
	state := session.NewSessionState()

	assert.False(t, state.Authenticated)
	assert.Nil(t, state.Identity)
	assert.Empty(t, state.Token)
	assert.True(t, state.NeedsBusinessSelection)
	assert.Equal(t, session.PhaseUnauthenticated, state.Phase())
}

func TestPhaseDerivation(t *testing.T) {
	identity := newTestIdentity("a@b.c")
	business := newTestBusiness("B", identity.ID)

	tests := []struct {
		name  string
		state session.SessionState
		phase session.Phase
	}{
		{
			name:  "initial",
			state: session.NewSessionState(),
			phase: session.PhaseUnauthenticated,
		},
		{
			name: "failure with error message",
			state: func() session.SessionState {
				s := session.NewSessionState()
				s.Error = "Unable to sign in. Please try again."
				return s
			}(),
			phase: session.PhaseUnauthenticated,
		},
		{
			name: "onboarding keeps identity and token",
			state: session.SessionState{
				Identity: identity,
				Token:    "tok",
			},
			phase: session.PhaseOnboarding,
		},
		{
			name: "several businesses pending selection",
			state: session.SessionState{
				Authenticated:          true,
				Identity:               identity,
				Token:                  "tok",
				Businesses:             []*session.Business{business, newTestBusiness("C", identity.ID)},
				NeedsBusinessSelection: true,
			},
			phase: session.PhaseNeedsSelection,
		},
		{
			name: "active business selected",
			state: session.SessionState{
				Authenticated:   true,
				Identity:        identity,
				Token:           "tok",
				Businesses:      []*session.Business{business},
				CurrentBusiness: business,
				CurrentRole:     session.RoleOwner,
			},
			phase: session.PhaseActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.state.Phase())
		})
	}
}

func TestSessionStateHasBusiness(t *testing.T) {
	b1 := newTestBusiness("One", uuid.New())
	b2 := newTestBusiness("Two", uuid.New())

	state := session.SessionState{Businesses: []*session.Business{b1, nil}}

	assert.True(t, state.HasBusiness(b1.ID.String()))
	assert.False(t, state.HasBusiness(b2.ID.String()))
	assert.False(t, state.HasBusiness(""))
}
