package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AcceptInvitationMessage struct {
	Token      string    `json:"token"`
	IdentityID uuid.UUID `json:"identity_id"`
	OnResponse func(resp *AcceptInvitationResponse)
}

func (m AcceptInvitationMessage) Type() string { return "membership.invite_accept" }

type AcceptInvitationResponse struct {
	Invitation *Invitation
	Membership *BusinessMembership
	Success    bool
}

// AcceptInvitationHandler turns a pending invitation into an active
// membership. The invitation email must match the accepting identity.
type AcceptInvitationHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
}

func NewAcceptInvitationHandler(repo RepositoryManager) *AcceptInvitationHandler {
	return &AcceptInvitationHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

// WithActivitySink records membership.invite.accepted events.
func (h *AcceptInvitationHandler) WithActivitySink(sink ActivitySink) *AcceptInvitationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *AcceptInvitationHandler) WithLogger(logger Logger) *AcceptInvitationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AcceptInvitationHandler) Execute(ctx context.Context, event AcceptInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation acceptance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AcceptInvitationHandler) execute(ctx context.Context, event AcceptInvitationMessage) error {
	resp := &AcceptInvitationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		invitation, err := h.repo.Invitations().GetByIdentifierTx(ctx, tx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvitationNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve invitation")
		}

		if invitation.Status != InvitationPending {
			return ErrInvitationNotFound.Clone().
				WithMetadata(map[string]any{"status": invitation.Status})
		}

		now := time.Now()
		if invitation.ExpiresAt != nil && now.After(*invitation.ExpiresAt) {
			invitation.Status = InvitationExpired
			if _, err := h.repo.Invitations().UpdateTx(ctx, tx, invitation, repository.UpdateByID(invitation.ID.String())); err != nil {
				h.logger.Warn("failed to mark invitation expired", "error", err)
			}
			return ErrInvitationExpired
		}

		identity, err := h.repo.Identities().GetByIdentifierTx(ctx, tx, event.IdentityID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve accepting identity")
		}

		if normalizeEmail(identity.Email) != normalizeEmail(invitation.Email) {
			return goerrors.New("invitation was issued for a different email", goerrors.CategoryAuth).
				WithCode(goerrors.CodeForbidden)
		}

		membership := &BusinessMembership{
			IdentityID: identity.ID,
			BusinessID: invitation.BusinessID,
			Role:       invitation.Role,
			Active:     true,
			JoinedAt:   &now,
		}
		if membership, err = h.repo.Memberships().CreateTx(ctx, tx, membership); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create membership")
		}

		invitation.Status = InvitationAccepted
		invitation.AcceptedAt = &now
		if invitation, err = h.repo.Invitations().UpdateTx(ctx, tx, invitation, repository.UpdateByID(invitation.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not mark invitation accepted")
		}

		resp.Invitation = invitation
		resp.Membership = membership
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invitation acceptance transaction failed")
	}

	h.recordAccepted(ctx, event, resp)

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *AcceptInvitationHandler) recordAccepted(ctx context.Context, event AcceptInvitationMessage, resp *AcceptInvitationResponse) {
	sink := normalizeActivitySink(h.activitySink)
	err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventInviteAccepted,
		Actor:      ActorRef{ID: event.IdentityID.String(), Type: "identity"},
		IdentityID: event.IdentityID.String(),
		BusinessID: resp.Invitation.BusinessID.String(),
		Metadata: map[string]any{
			"member_role":   string(resp.Invitation.Role),
			"invitation_id": resp.Invitation.ID.String(),
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("accept invitation activity sink error", "error", err)
	}
}
