package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// genericAuthErrMessage is shown when a provider failure carries no usable
// message of its own.
const genericAuthErrMessage = "Unable to sign in. Please try again."

// SubscriberFunc receives every published state snapshot.
type SubscriberFunc func(SessionState)

// SessionStateMachine is the single source of truth for who is signed in,
// which businesses they may act on and which one is active. Every operation
// returns the snapshot it published; failures inside authentication actions
// never escape as errors, they degrade to an unauthenticated state with a
// human readable Error.
type SessionStateMachine interface {
	Current() SessionState
	Initialize(ctx context.Context) SessionState
	Login(ctx context.Context, creds Credentials) SessionState
	Signup(ctx context.Context, data SignupData) SessionState
	SignInWithApple(ctx context.Context) SessionState
	SignInWithGoogle(ctx context.Context) SessionState
	SignInWithOAuthData(ctx context.Context, provider string, data OAuthData) SessionState
	SelectBusiness(ctx context.Context, business *Business) SessionState
	RefreshBusinesses(ctx context.Context) SessionState
	Logout(ctx context.Context) SessionState
	UpdateIdentity(identity *Identity) SessionState
	HasPermission(action Permission) bool
	IsBusinessOwner() bool
	IsTeamMember() bool
	Subscribe(fn SubscriberFunc) func()
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*sessionStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *sessionStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish
// session lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *sessionStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *sessionStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewSessionStateMachine returns the default implementation composed from
// the given provider and store. The machine starts unauthenticated and
// loading until Initialize runs.
func NewSessionStateMachine(provider IdentityProvider, store MembershipStore, opts ...StateMachineOption) SessionStateMachine {
	initial := NewSessionState()
	initial.Loading = true

	sm := &sessionStateMachine{
		provider:     provider,
		store:        store,
		state:        initial,
		subscribers:  map[uint64]SubscriberFunc{},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type sessionStateMachine struct {
	provider IdentityProvider
	store    MembershipStore

	mu          sync.Mutex
	state       SessionState
	subscribers map[uint64]SubscriberFunc
	nextSubID   uint64

	authInFlight atomic.Bool

	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *sessionStateMachine) Current() SessionState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// Subscribe registers fn to receive every published snapshot. The returned
// function cancels the subscription.
func (sm *sessionStateMachine) Subscribe(fn SubscriberFunc) func() {
	if fn == nil {
		return func() {}
	}

	sm.mu.Lock()
	id := sm.nextSubID
	sm.nextSubID++
	sm.subscribers[id] = fn
	sm.mu.Unlock()

	return func() {
		sm.mu.Lock()
		delete(sm.subscribers, id)
		sm.mu.Unlock()
	}
}

// Initialize restores a previous session. It never fails: any provider
// error degrades to the initial unauthenticated state so the app shows the
// login screen.
func (sm *sessionStateMachine) Initialize(ctx context.Context) SessionState {
	if !sm.beginAuthAction("initialize") {
		return sm.rejectInFlight()
	}
	defer sm.endAuthAction()

	outcome, err := sm.provider.RestoreSession(ctx)
	if err != nil || outcome == nil || outcome.Identity == nil {
		if err != nil {
			sm.logger.Debug("initialize: no session restored", "error", err)
		}
		return sm.replace(NewSessionState())
	}

	next := sm.deriveMembershipState(ctx, outcome.Identity, outcome.Token, outcome.Businesses)
	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventSessionRestored,
		Actor:      actorForIdentity(outcome.Identity),
		IdentityID: outcome.Identity.ID.String(),
	})
	return sm.replace(next)
}

func (sm *sessionStateMachine) Login(ctx context.Context, creds Credentials) SessionState {
	return sm.runAuthAction(ctx, "login", func(ctx context.Context) (*AuthOutcome, error) {
		return sm.provider.Login(ctx, creds)
	})
}

func (sm *sessionStateMachine) Signup(ctx context.Context, data SignupData) SessionState {
	return sm.runAuthAction(ctx, "signup", func(ctx context.Context) (*AuthOutcome, error) {
		return sm.provider.Signup(ctx, data)
	})
}

func (sm *sessionStateMachine) SignInWithApple(ctx context.Context) SessionState {
	return sm.runAuthAction(ctx, "oauth.apple", func(ctx context.Context) (*AuthOutcome, error) {
		return sm.provider.SignInWithApple(ctx)
	})
}

func (sm *sessionStateMachine) SignInWithGoogle(ctx context.Context) SessionState {
	return sm.runAuthAction(ctx, "oauth.google", func(ctx context.Context) (*AuthOutcome, error) {
		return sm.provider.SignInWithGoogle(ctx)
	})
}

func (sm *sessionStateMachine) SignInWithOAuthData(ctx context.Context, provider string, data OAuthData) SessionState {
	return sm.runAuthAction(ctx, "oauth."+provider, func(ctx context.Context) (*AuthOutcome, error) {
		return sm.provider.SignInWithOAuthData(ctx, provider, data)
	})
}

// SelectBusiness activates a business from the reachable set. The role is
// always looked up from the MembershipStore; a missing membership leaves
// the role empty rather than guessing.
func (sm *sessionStateMachine) SelectBusiness(ctx context.Context, business *Business) SessionState {
	if business == nil {
		sm.logger.Warn("select business called with nil business")
		return sm.Current()
	}

	current := sm.Current()
	if current.Identity == nil {
		sm.logger.Error("select business without identity", "business_id", business.ID.String())
		return current
	}

	if !current.HasBusiness(business.ID.String()) {
		sm.logger.Error("select business outside reachable set", "business_id", business.ID.String())
		return current
	}

	role, err := sm.lookupRole(ctx, current, business)
	if err != nil {
		// recoverable: the user can retry the selection
		sm.logger.Error("select business role lookup failed", "error", err, "business_id", business.ID.String())
		return current
	}

	next := current.clone()
	next.Authenticated = true
	next.CurrentBusiness = business
	next.CurrentRole = role
	next.NeedsBusinessSelection = false
	next.Error = ""
	next.Epoch++

	published := sm.replace(next)

	if err := sm.store.SetCurrentBusiness(ctx, current.Identity.ID, business.ID); err != nil {
		sm.logger.Warn("persist business selection failed", "error", err)
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventBusinessSelected,
		Actor:      actorForIdentity(current.Identity),
		IdentityID: current.Identity.ID.String(),
		BusinessID: business.ID.String(),
		Metadata:   map[string]any{"role": string(role)},
	})

	return published
}

// RefreshBusinesses re-fetches the membership set and re-applies the
// selection rule. A still-valid current selection survives the refresh.
func (sm *sessionStateMachine) RefreshBusinesses(ctx context.Context) SessionState {
	current := sm.Current()
	if current.Identity == nil {
		sm.logger.Error("refresh businesses without identity")
		return current
	}

	memberships, err := sm.store.GetMembershipsForIdentity(ctx, current.Identity.ID)
	if err != nil {
		sm.logger.Error("refresh businesses fetch failed", "error", err)
		return current
	}

	businesses := make([]*Business, 0, len(memberships))
	freshRoles := make(map[uuid.UUID]Role, len(memberships))
	for _, m := range memberships {
		if m == nil || !m.Active || m.Business == nil {
			continue
		}
		businesses = append(businesses, m.Business)
		freshRoles[m.BusinessID] = m.Role
	}

	next := current.clone()
	next.Businesses = businesses

	switch len(businesses) {
	case 0:
		next.Authenticated = false
		next.CurrentBusiness = nil
		next.CurrentRole = RoleNone
		next.NeedsBusinessSelection = false
	case 1:
		b := businesses[0]
		if next.CurrentBusiness == nil || next.CurrentBusiness.ID != b.ID {
			role := sm.lookupRoleOrNone(ctx, current.Identity, b)
			next.CurrentBusiness = b
			next.CurrentRole = role
			next.Epoch++
		} else {
			// a surviving selection still picks up role changes
			next.CurrentRole = freshRoles[b.ID]
		}
		next.Authenticated = true
		next.NeedsBusinessSelection = false
	default:
		next.Authenticated = true
		if next.CurrentBusiness != nil && next.HasBusiness(next.CurrentBusiness.ID.String()) {
			next.CurrentRole = freshRoles[next.CurrentBusiness.ID]
			next.NeedsBusinessSelection = false
		} else {
			next.CurrentBusiness = nil
			next.CurrentRole = RoleNone
			next.NeedsBusinessSelection = true
		}
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventBusinessesRefresh,
		Actor:      actorForIdentity(current.Identity),
		IdentityID: current.Identity.ID.String(),
		Metadata:   map[string]any{"count": len(businesses)},
	})

	return sm.replace(next)
}

// Logout converges to the initial state regardless of provider health. The
// provider and store calls are best effort.
func (sm *sessionStateMachine) Logout(ctx context.Context) SessionState {
	current := sm.Current()

	if err := sm.provider.Logout(ctx); err != nil {
		sm.logger.Warn("provider logout failed", "error", err)
	}

	if current.Identity != nil {
		if err := sm.store.ClearCurrentSession(ctx, current.Identity.ID); err != nil {
			sm.logger.Warn("clear session selection failed", "error", err)
		}
		sm.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventLogout,
			Actor:      actorForIdentity(current.Identity),
			IdentityID: current.Identity.ID.String(),
		})
	}

	next := NewSessionState()
	next.Epoch = current.Epoch
	return sm.replace(next)
}

// UpdateIdentity replaces the identity value in state. No other field is
// touched and no membership derivation runs.
func (sm *sessionStateMachine) UpdateIdentity(identity *Identity) SessionState {
	sm.mu.Lock()
	next := sm.state
	next.Identity = identity
	sm.state = next
	subs := sm.collectSubscribers()
	sm.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

func (sm *sessionStateMachine) HasPermission(action Permission) bool {
	return sm.Current().CurrentRole.Can(action)
}

func (sm *sessionStateMachine) IsBusinessOwner() bool {
	return sm.Current().CurrentRole == RoleOwner
}

func (sm *sessionStateMachine) IsTeamMember() bool {
	role := sm.Current().CurrentRole
	return role != RoleNone && role != RoleOwner
}

// runAuthAction is the shared path for login, signup and OAuth actions:
// single-flight guard, loading snapshot, provider call, membership
// derivation. Provider errors become state, never returned errors.
func (sm *sessionStateMachine) runAuthAction(ctx context.Context, name string, call func(context.Context) (*AuthOutcome, error)) SessionState {
	if !sm.beginAuthAction(name) {
		return sm.rejectInFlight()
	}
	defer sm.endAuthAction()

	sm.mutate(func(s SessionState) SessionState {
		s.Loading = true
		s.Error = ""
		s.Message = ""
		return s
	})

	outcome, err := call(ctx)
	if err != nil || outcome == nil {
		next := NewSessionState()
		next.Error = authErrorMessage(err)
		sm.logger.Error("authentication action failed", "action", name, "error", err)
		sm.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"action": name, "error": next.Error},
		})
		return sm.replace(next)
	}

	if outcome.Token == "" && outcome.Message != "" {
		// signup accepted, session not issued until the email is confirmed
		next := NewSessionState()
		next.Message = outcome.Message
		sm.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSignupPending,
			Actor:     actorForIdentity(outcome.Identity),
			Metadata:  map[string]any{"action": name},
		})
		return sm.replace(next)
	}

	if outcome.Identity == nil {
		next := NewSessionState()
		next.Error = genericAuthErrMessage
		sm.logger.Error("authentication outcome carries no identity", "action", name)
		sm.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"action": name, "error": next.Error},
		})
		return sm.replace(next)
	}

	next := sm.deriveMembershipState(ctx, outcome.Identity, outcome.Token, outcome.Businesses)
	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      actorForIdentity(outcome.Identity),
		IdentityID: identityID(outcome.Identity),
		Metadata:   map[string]any{"action": name, "businesses": len(outcome.Businesses)},
	})
	return sm.replace(next)
}

// deriveMembershipState applies the membership-count rule shared by every
// authentication path: zero businesses parks the identity on the
// onboarding path, one auto-selects with a real role lookup, more than one
// requires an explicit selection.
func (sm *sessionStateMachine) deriveMembershipState(ctx context.Context, identity *Identity, token string, businesses []*Business) SessionState {
	next := NewSessionState()
	next.Identity = identity
	next.Token = token
	next.NeedsBusinessSelection = false
	if len(businesses) > 0 {
		next.Businesses = make([]*Business, len(businesses))
		copy(next.Businesses, businesses)
	}

	sm.mu.Lock()
	next.Epoch = sm.state.Epoch
	sm.mu.Unlock()

	switch len(businesses) {
	case 0:
		// onboarding: signed in, nothing to act on yet
		next.Authenticated = false
	case 1:
		b := businesses[0]
		next.Authenticated = true
		next.CurrentBusiness = b
		next.CurrentRole = sm.lookupRoleOrNone(ctx, identity, b)
		next.Epoch++
	default:
		next.Authenticated = true
		next.NeedsBusinessSelection = true
	}

	return next
}

// lookupRole resolves the active membership role. A missing membership is
// not an error: it yields RoleNone. Anything else is a store failure the
// caller should treat as recoverable.
func (sm *sessionStateMachine) lookupRole(ctx context.Context, current SessionState, business *Business) (Role, error) {
	role, err := sm.store.GetMembershipRole(ctx, current.Identity.ID, business.ID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			sm.logger.Warn("no active membership found",
				"identity_id", current.Identity.ID.String(),
				"business_id", business.ID.String(),
			)
			return RoleNone, nil
		}
		return RoleNone, err
	}
	return role, nil
}

func (sm *sessionStateMachine) lookupRoleOrNone(ctx context.Context, identity *Identity, business *Business) Role {
	if identity == nil || business == nil {
		return RoleNone
	}
	role, err := sm.store.GetMembershipRole(ctx, identity.ID, business.ID)
	if err != nil {
		if !goerrors.IsNotFound(err) {
			sm.logger.Error("membership role lookup failed", "error", err)
		}
		return RoleNone
	}
	return role
}

func (sm *sessionStateMachine) beginAuthAction(name string) bool {
	if !sm.authInFlight.CompareAndSwap(false, true) {
		sm.logger.Warn("authentication action rejected, another is in flight", "action", name)
		return false
	}
	return true
}

func (sm *sessionStateMachine) endAuthAction() {
	sm.authInFlight.Store(false)
}

// rejectInFlight hands the losing caller the current snapshot tagged with
// ErrActionInFlight. Nothing is published: the in-flight action owns the
// machine state.
func (sm *sessionStateMachine) rejectInFlight() SessionState {
	rejected := sm.Current()
	rejected.Error = ErrActionInFlight.Message
	return rejected
}

func (sm *sessionStateMachine) replace(next SessionState) SessionState {
	next.Loading = false

	sm.mu.Lock()
	sm.state = next
	subs := sm.collectSubscribers()
	sm.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

func (sm *sessionStateMachine) mutate(f func(SessionState) SessionState) SessionState {
	sm.mu.Lock()
	next := f(sm.state.clone())
	sm.state = next
	subs := sm.collectSubscribers()
	sm.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// collectSubscribers must run under mu.
func (sm *sessionStateMachine) collectSubscribers() []SubscriberFunc {
	if len(sm.subscribers) == 0 {
		return nil
	}
	subs := make([]SubscriberFunc, 0, len(sm.subscribers))
	for _, fn := range sm.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func (sm *sessionStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error", "error", err)
	}
}

func authErrorMessage(err error) string {
	if err == nil {
		return genericAuthErrMessage
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}

	return genericAuthErrMessage
}

func actorForIdentity(identity *Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: identity.ID.String(), Type: "identity"}
}

func identityID(identity *Identity) string {
	if identity == nil {
		return ""
	}
	return identity.ID.String()
}
