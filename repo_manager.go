package session

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Identities() Identities
	Businesses() Businesses
	Memberships() Memberships
	Invitations() repository.Repository[*Invitation]
}

type mngr struct {
	db          *bun.DB
	identities  Identities
	businesses  Businesses
	memberships Memberships
	invitations repository.Repository[*Invitation]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		identities:  NewIdentitiesRepository(db),
		businesses:  NewBusinessesRepository(db),
		memberships: NewMembershipsRepository(db),
		invitations: NewInvitationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.businesses == nil {
		return errors.New("repository businesses should be initialized")
	}

	if m.memberships == nil {
		return errors.New("repository memberships should be initialized")
	}

	if m.invitations == nil {
		return errors.New("repository invitations should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Identities() Identities {
	return m.identities
}

func (m mngr) Businesses() Businesses {
	return m.businesses
}

func (m mngr) Memberships() Memberships {
	return m.memberships
}

func (m mngr) Invitations() repository.Repository[*Invitation] {
	return m.invitations
}
