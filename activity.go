package session

import (
	"context"
	"time"
)

// ActorRef identifies who/what triggered a session event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess      ActivityEventType = "session.login.success"
	ActivityEventLoginFailure      ActivityEventType = "session.login.failure"
	ActivityEventSignupPending     ActivityEventType = "session.signup.pending"
	ActivityEventOAuthLogin        ActivityEventType = "session.oauth.login"
	ActivityEventSessionRestored   ActivityEventType = "session.restored"
	ActivityEventBusinessSelected  ActivityEventType = "session.business.selected"
	ActivityEventBusinessesRefresh ActivityEventType = "session.businesses.refreshed"
	ActivityEventLogout            ActivityEventType = "session.logout"
	ActivityEventMemberInvited     ActivityEventType = "membership.member.invited"
	ActivityEventInviteAccepted    ActivityEventType = "membership.invite.accepted"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	IdentityID string
	BusinessID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
