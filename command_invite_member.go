package session

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InvitationTTL is how long a pending invitation stays acceptable.
var InvitationTTL = 7 * 24 * time.Hour

// Mailer delivers invitation emails. The default implementation prints to
// stdout; host apps plug in a real sender.
type Mailer interface {
	SendInvitation(ctx context.Context, invitation *Invitation) error
}

type MailerFunc func(ctx context.Context, invitation *Invitation) error

func (f MailerFunc) SendInvitation(ctx context.Context, invitation *Invitation) error {
	if f == nil {
		return nil
	}
	return f(ctx, invitation)
}

type InviteMemberMessage struct {
	BusinessID uuid.UUID `json:"business_id"`
	Email      string    `json:"email"`
	Role       string    `json:"member_role"`
	InvitedBy  uuid.UUID `json:"invited_by"`
	OnResponse func(resp *InviteMemberResponse)
}

func (m InviteMemberMessage) Type() string { return "membership.invite" }

type InviteMemberResponse struct {
	Invitation *Invitation
	Success    bool
}

// InviteMemberHandler creates a pending invitation and triggers the email.
// Only owners may invite; that check happens at the controller/state
// machine layer, the command trusts its caller.
type InviteMemberHandler struct {
	repo         RepositoryManager
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
}

func NewInviteMemberHandler(repo RepositoryManager, mailer Mailer) *InviteMemberHandler {
	if mailer == nil {
		mailer = MailerFunc(printInvitationNotification)
	}
	return &InviteMemberHandler{
		repo:         repo,
		mailer:       mailer,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

// WithActivitySink records membership.member.invited events.
func (h *InviteMemberHandler) WithActivitySink(sink ActivitySink) *InviteMemberHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *InviteMemberHandler) WithLogger(logger Logger) *InviteMemberHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InviteMemberHandler) Execute(ctx context.Context, event InviteMemberMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during member invitation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteMemberHandler) execute(ctx context.Context, event InviteMemberMessage) error {
	resp := &InviteMemberResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	role, ok := ParseRole(event.Role)
	if !ok || role == RoleOwner {
		return ErrInvalidRole.Clone().
			WithMetadata(map[string]any{"member_role": event.Role})
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		expires := now.Add(InvitationTTL)

		invitation := &Invitation{
			BusinessID: event.BusinessID,
			Email:      normalizeEmail(event.Email),
			Role:       role,
			Status:     InvitationPending,
			Token:      uuid.NewString(),
			InvitedBy:  event.InvitedBy,
			ExpiresAt:  &expires,
		}

		created, err := h.repo.Invitations().CreateTx(ctx, tx, invitation)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create invitation")
		}

		resp.Invitation = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "member invitation transaction failed")
	}

	if err := h.mailer.SendInvitation(ctx, resp.Invitation); err != nil {
		h.logger.Warn("failed to send invitation email", "error", err)
	}

	h.recordInvited(ctx, event, resp.Invitation)

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InviteMemberHandler) recordInvited(ctx context.Context, event InviteMemberMessage, invitation *Invitation) {
	sink := normalizeActivitySink(h.activitySink)
	err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventMemberInvited,
		Actor:      ActorRef{ID: event.InvitedBy.String(), Type: "identity"},
		IdentityID: event.InvitedBy.String(),
		BusinessID: event.BusinessID.String(),
		Metadata: map[string]any{
			"email":         invitation.Email,
			"member_role":   string(invitation.Role),
			"invitation_id": invitation.ID.String(),
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("invite member activity sink error", "error", err)
	}
}

func printInvitationNotification(_ context.Context, invitation *Invitation) error {
	fmt.Println("====== SENDING INVITATION EMAIL =======")
	fmt.Printf("to: %s\n", invitation.Email)
	fmt.Printf("link: /invitations/%s\n", invitation.Token)
	return nil
}
