package session

// Phase names the reachable shapes of a SessionState. The raw cross product
// of the flags collapses to these four in practice.
type Phase string

const (
	// PhaseUnauthenticated is the initial, post-logout and post-failure shape.
	PhaseUnauthenticated Phase = "unauthenticated"
	// PhaseOnboarding means the identity signed in but holds no membership yet.
	PhaseOnboarding Phase = "onboarding"
	// PhaseNeedsSelection means several businesses are reachable and none is active.
	PhaseNeedsSelection Phase = "needs_selection"
	// PhaseActive means a business is selected and screens may render.
	PhaseActive Phase = "active"
)

// SessionState is the immutable aggregate the UI consumes. Operations on
// the state machine replace it wholesale; nothing mutates a published
// snapshot in place.
type SessionState struct {
	Authenticated          bool
	Identity               *Identity
	Token                  string
	Businesses             []*Business
	CurrentBusiness        *Business
	CurrentRole            Role
	NeedsBusinessSelection bool

	// Epoch is bumped whenever the active business changes so views bound
	// to business data know to remount.
	Epoch uint64

	// Transient UI feedback. Error and Message are mutually exclusive.
	Loading bool
	Error   string
	Message string
}

// NewSessionState returns the initial unauthenticated state. Logout always
// converges back to exactly this value (with Epoch preserved).
func NewSessionState() SessionState {
	return SessionState{
		NeedsBusinessSelection: true,
	}
}

// Phase derives the reachable phase from the state flags.
func (s SessionState) Phase() Phase {
	switch {
	case s.CurrentBusiness != nil:
		return PhaseActive
	case s.Authenticated && s.NeedsBusinessSelection:
		return PhaseNeedsSelection
	case !s.Authenticated && s.Identity != nil && s.Token != "":
		return PhaseOnboarding
	default:
		return PhaseUnauthenticated
	}
}

// HasBusiness reports whether the business id is part of the reachable set.
func (s SessionState) HasBusiness(id string) bool {
	for _, b := range s.Businesses {
		if b != nil && b.ID.String() == id {
			return true
		}
	}
	return false
}

// clone copies the snapshot, duplicating the business slice so the caller
// can append or reslice without touching the published value. Identity and
// Business records are shared and treated as immutable.
func (s SessionState) clone() SessionState {
	next := s
	if len(s.Businesses) > 0 {
		next.Businesses = make([]*Business, len(s.Businesses))
		copy(next.Businesses, s.Businesses)
	}
	return next
}
