package session_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	session "github.com/meetd-personal/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestInviteMemberCreatesPendingInvitation(t *testing.T) {
	businessID := uuid.New()
	invitedBy := uuid.New()

	var created *session.Invitation
	repo := &stubRepoManager{
		invitations: &stubInvitations{
			createTx: func(ctx context.Context, tx bun.IDB, record *session.Invitation, _ ...repository.InsertCriteria) (*session.Invitation, error) {
				record.ID = uuid.New()
				created = record
				return record, nil
			},
		},
	}

	mailed := 0
	sink := &recordingSink{}
	handler := session.NewInviteMemberHandler(repo, session.MailerFunc(func(ctx context.Context, inv *session.Invitation) error {
		mailed++
		return nil
	})).WithActivitySink(sink)

	var resp *session.InviteMemberResponse
	err := handler.Execute(context.Background(), session.InviteMemberMessage{
		BusinessID: businessID,
		Email:      "New.Member@Example.com",
		Role:       "employee",
		InvitedBy:  invitedBy,
		OnResponse: func(r *session.InviteMemberResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, businessID, created.BusinessID)
	assert.Equal(t, "new.member@example.com", created.Email)
	assert.Equal(t, session.RoleEmployee, created.Role)
	assert.Equal(t, session.InvitationPending, created.Status)
	assert.NotEmpty(t, created.Token)
	require.NotNil(t, created.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(session.InvitationTTL), *created.ExpiresAt, time.Minute)

	assert.Equal(t, 1, mailed)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Contains(t, sink.eventTypes(), session.ActivityEventMemberInvited)
}

func TestInviteMemberRejectsOwnerRole(t *testing.T) {
	handler := session.NewInviteMemberHandler(&stubRepoManager{}, session.MailerFunc(nil))

	err := handler.Execute(context.Background(), session.InviteMemberMessage{
		BusinessID: uuid.New(),
		Email:      "someone@example.com",
		Role:       "owner",
		InvitedBy:  uuid.New(),
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeInvalidRole, richErr.TextCode)
}

func TestInviteMemberRejectsUnknownRole(t *testing.T) {
	handler := session.NewInviteMemberHandler(&stubRepoManager{}, session.MailerFunc(nil))

	err := handler.Execute(context.Background(), session.InviteMemberMessage{
		BusinessID: uuid.New(),
		Email:      "someone@example.com",
		Role:       "superuser",
		InvitedBy:  uuid.New(),
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, session.TextCodeInvalidRole, richErr.TextCode)
}

func TestInviteMemberMailerFailureIsNotFatal(t *testing.T) {
	repo := &stubRepoManager{
		invitations: &stubInvitations{
			createTx: func(ctx context.Context, tx bun.IDB, record *session.Invitation, _ ...repository.InsertCriteria) (*session.Invitation, error) {
				record.ID = uuid.New()
				return record, nil
			},
		},
	}

	handler := session.NewInviteMemberHandler(repo, session.MailerFunc(func(ctx context.Context, inv *session.Invitation) error {
		return goerrors.New("smtp unreachable", goerrors.CategoryInternal)
	}))

	err := handler.Execute(context.Background(), session.InviteMemberMessage{
		BusinessID: uuid.New(),
		Email:      "someone@example.com",
		Role:       "manager",
		InvitedBy:  uuid.New(),
	})
	assert.NoError(t, err)
}
