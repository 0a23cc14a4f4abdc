package session

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Businesses interface {
	repository.Repository[*Business]

	GetOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]*Business, error)
	GetOwnedByTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) ([]*Business, error)
}

type businesses struct {
	repository.Repository[*Business]
	db *bun.DB
}

var _ Businesses = (*businesses)(nil)

func NewBusinessesRepository(db *bun.DB) Businesses {
	repo := repository.NewRepository[*Business](db, repository.ModelHandlers[*Business]{
		NewRecord: func() *Business { return &Business{} },
		GetID: func(b *Business) uuid.UUID {
			if b == nil {
				return uuid.Nil
			}
			return b.ID
		},
		SetID: func(b *Business, id uuid.UUID) {
			if b != nil {
				b.ID = id
			}
		},
	})

	return &businesses{
		Repository: repo,
		db:         db,
	}
}

func (r *businesses) GetOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]*Business, error) {
	return r.GetOwnedByTx(ctx, r.db, ownerID)
}

func (r *businesses) GetOwnedByTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) ([]*Business, error) {
	var records []*Business
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.owner_id = ?", ownerID).
		Order("biz.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

type Memberships interface {
	repository.Repository[*BusinessMembership]

	GetActiveForIdentity(ctx context.Context, identityID uuid.UUID) ([]*BusinessMembership, error)
	GetActiveForIdentityTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID) ([]*BusinessMembership, error)
	GetForBusiness(ctx context.Context, businessID uuid.UUID) ([]*BusinessMembership, error)
	Deactivate(ctx context.Context, identityID, businessID uuid.UUID) error
}

type memberships struct {
	repository.Repository[*BusinessMembership]
	db *bun.DB
}

var _ Memberships = (*memberships)(nil)

func NewMembershipsRepository(db *bun.DB) Memberships {
	repo := repository.NewRepository[*BusinessMembership](db, repository.ModelHandlers[*BusinessMembership]{
		NewRecord: func() *BusinessMembership { return &BusinessMembership{} },
		GetID: func(m *BusinessMembership) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *BusinessMembership, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &memberships{
		Repository: repo,
		db:         db,
	}
}

func (r *memberships) GetActiveForIdentity(ctx context.Context, identityID uuid.UUID) ([]*BusinessMembership, error) {
	return r.GetActiveForIdentityTx(ctx, r.db, identityID)
}

func (r *memberships) GetActiveForIdentityTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID) ([]*BusinessMembership, error) {
	var records []*BusinessMembership
	err := tx.NewSelect().
		Model(&records).
		Relation("Business").
		Where("?TableAlias.identity_id = ?", identityID).
		Where("?TableAlias.is_active = TRUE").
		Order("bm.joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *memberships) GetForBusiness(ctx context.Context, businessID uuid.UUID) ([]*BusinessMembership, error) {
	var records []*BusinessMembership
	err := r.db.NewSelect().
		Model(&records).
		Relation("Identity").
		Where("?TableAlias.business_id = ?", businessID).
		Where("?TableAlias.is_active = TRUE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Deactivate turns the membership off without deleting the row, so the
// audit trail survives member removal.
func (r *memberships) Deactivate(ctx context.Context, identityID, businessID uuid.UUID) error {
	_, err := r.db.NewRaw(`
		UPDATE "business_memberships" AS "bm"
		SET
			"is_active" = FALSE,
			"updated_at" = ?
		WHERE
			("bm".identity_id = ?)
			AND ("bm".business_id = ?)
			AND "bm"."deleted_at" IS NULL;
	`, time.Now(), identityID, businessID).Exec(ctx)

	return err
}

func NewInvitationsRepository(db *bun.DB) repository.Repository[*Invitation] {
	handlers := repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(record *Invitation) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Invitation, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

// membershipStore implements MembershipStore on top of the bun
// repositories. It is the concrete store NewSessionStateMachine expects.
type membershipStore struct {
	db          *bun.DB
	memberships Memberships
	businesses  Businesses
	logger      Logger
}

var _ MembershipStore = (*membershipStore)(nil)

type MembershipStoreOption func(*membershipStore)

func WithMembershipStoreLogger(logger Logger) MembershipStoreOption {
	return func(s *membershipStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewMembershipStore(db *bun.DB, opts ...MembershipStoreOption) MembershipStore {
	store := &membershipStore{
		db:          db,
		memberships: NewMembershipsRepository(db),
		businesses:  NewBusinessesRepository(db),
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

func (s *membershipStore) GetMembershipsForIdentity(ctx context.Context, identityID uuid.UUID) ([]*BusinessMembership, error) {
	return s.memberships.GetActiveForIdentity(ctx, identityID)
}

// GetBusinessRelationships splits the reachable set into owned vs member
// businesses. A business the identity owns AND holds a membership in is
// reported once, under Owned.
func (s *membershipStore) GetBusinessRelationships(ctx context.Context, identityID uuid.UUID) (*BusinessRelationships, error) {
	owned, err := s.businesses.GetOwnedBy(ctx, identityID)
	if err != nil {
		return nil, err
	}

	records, err := s.memberships.GetActiveForIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	ownedIDs := make(map[uuid.UUID]bool, len(owned))
	for _, b := range owned {
		ownedIDs[b.ID] = true
	}

	rel := &BusinessRelationships{
		Owned: owned,
		All:   append([]*Business{}, owned...),
	}

	for _, m := range records {
		if m.Business == nil || ownedIDs[m.BusinessID] {
			continue
		}
		rel.Member = append(rel.Member, m.Business)
		rel.All = append(rel.All, m.Business)
	}

	return rel, nil
}

func (s *membershipStore) GetMembershipRole(ctx context.Context, identityID, businessID uuid.UUID) (Role, error) {
	record := &BusinessMembership{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.identity_id = ?", identityID).
		Where("?TableAlias.business_id = ?", businessID).
		Where("?TableAlias.is_active = TRUE").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return RoleNone, ErrMembershipNotFound
		}
		return RoleNone, err
	}

	return record.Role, nil
}

// SetCurrentBusiness upserts the durable selection row.
func (s *membershipStore) SetCurrentBusiness(ctx context.Context, identityID, businessID uuid.UUID) error {
	now := time.Now()
	selection := &BusinessSelection{
		IdentityID: identityID,
		BusinessID: businessID,
		UpdatedAt:  &now,
	}

	_, err := s.db.NewInsert().
		Model(selection).
		On("CONFLICT (identity_id) DO UPDATE").
		Set("business_id = EXCLUDED.business_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

func (s *membershipStore) ClearCurrentSession(ctx context.Context, identityID uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*BusinessSelection)(nil)).
		Where("identity_id = ?", identityID).
		Exec(ctx)

	return err
}
