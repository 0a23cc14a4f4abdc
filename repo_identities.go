package session

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Identities interface {
	repository.Repository[*Identity]

	TrackAttemptedLogin(ctx context.Context, identity *Identity) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error
	TrackSuccessfulLogin(ctx context.Context, identity *Identity) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error

	Register(ctx context.Context, identity *Identity) (*Identity, error)
	RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)
	GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *Identity) (*Identity, error)
	Create(ctx context.Context, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*Identity, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update ProfileUpdate) (*Identity, error)

	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type identities struct {
	repository.Repository[*Identity]
	db *bun.DB
}

var (
	_ Identities                       = (*identities)(nil)
	_ repository.Repository[*Identity] = (*identities)(nil)
)

func NewIdentitiesRepository(db *bun.DB) Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &identities{
		Repository: repo,
		db:         db,
	}
}

func (a *identities) Register(ctx context.Context, identity *Identity) (*Identity, error) {
	return a.RegisterTx(ctx, a.db, identity)
}

func (a *identities) RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	return a.CreateTx(ctx, tx, identity)
}

func (a *identities) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Identity, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *identities) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Identity, error) {
	options := resolveIdentityIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &Identity{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *identities) Create(ctx context.Context, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *identities) CreateTx(ctx context.Context, tx bun.IDB, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error) {
	prepareIdentityDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *identities) TrackSuccessfulLogin(ctx context.Context, identity *Identity) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, identity)
}

func (a *identities) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, loggedInAt, identity.ID).Exec(ctx)

	return err
}

func (a *identities) TrackAttemptedLogin(ctx context.Context, identity *Identity) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, identity)
}

func (a *identities) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(identity.ID.String()),
	}

	record := &Identity{}
	record.ID = identity.ID
	record.LoginAttempts = identity.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *identities) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *Identity) (*Identity, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	identity, err := a.Repository.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return identity, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.RegisterTx(ctx, tx, record)
}

func (a *identities) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*Identity, error) {
	return a.UpdateProfileTx(ctx, a.db, id, update)
}

func (a *identities) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update ProfileUpdate) (*Identity, error) {
	record := &Identity{ID: id}

	if update.FirstName != nil {
		record.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		record.LastName = *update.LastName
	}
	if update.AvatarURL != nil {
		record.AvatarURL = *update.AvatarURL
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *identities) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkEmailVerifiedTx(ctx, a.db, id)
}

func (a *identities) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET
			"is_email_verified" = TRUE
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, id).Exec(ctx)

	return err
}

func prepareIdentityDefaults(record *Identity) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = strings.ToLower(strings.TrimSpace(record.Email))
}

type identifierOption struct {
	column string
	value  string
}

func resolveIdentityIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
