package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"

	"github.com/meetd-personal/go-session/oauth"
)

type RegisterIdentityMessage struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	BusinessName string `json:"business_name"`
	UseHashid    bool
}

func (e RegisterIdentityMessage) Type() string { return "identity.register" }

// RegisterIdentityHandler runs account creation inside a single
// transaction. When a business name is provided the initial business and
// its owner membership are created atomically with the identity.
type RegisterIdentityHandler struct {
	repo      RepositoryManager
	useHashid bool
}

var _ AccountRegistrar = (*RegisterIdentityHandler)(nil)

func NewRegisterIdentityHandler(repo RepositoryManager) *RegisterIdentityHandler {
	return &RegisterIdentityHandler{repo: repo}
}

// WithHashidIdentifiers derives identity IDs deterministically from the
// email address.
func (h *RegisterIdentityHandler) WithHashidIdentifiers() *RegisterIdentityHandler {
	h.useHashid = true
	return h
}

func (h *RegisterIdentityHandler) Execute(ctx context.Context, event RegisterIdentityMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during identity registration",
		)
	default:
		_, _, err := h.RegisterAccount(ctx, SignupData{
			FirstName:    event.FirstName,
			LastName:     event.LastName,
			Email:        event.Email,
			Phone:        event.Phone,
			Password:     event.Password,
			BusinessName: event.BusinessName,
		})
		return err
	}
}

// RegisterAccount implements AccountRegistrar.
func (h *RegisterIdentityHandler) RegisterAccount(ctx context.Context, data SignupData) (*Identity, *Business, error) {
	identity := &Identity{}
	var business *Business

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(data.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		identity.PasswordHash = hash
		identity.Email = normalizeEmail(data.Email)
		identity.Phone = data.Phone
		identity.FirstName = data.FirstName
		identity.LastName = data.LastName
		if h.useHashid {
			if id, err := hashid.NewUUID(identity.Email); err == nil {
				identity.ID = id
			}
		}

		if identity, err = h.repo.Identities().CreateTx(ctx, tx, identity); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create identity")
		}

		if data.BusinessName == "" {
			return nil
		}

		business = &Business{
			Name:    data.BusinessName,
			OwnerID: identity.ID,
		}
		if business, err = h.repo.Businesses().CreateTx(ctx, tx, business); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create initial business")
		}

		now := time.Now()
		membership := &BusinessMembership{
			IdentityID: identity.ID,
			BusinessID: business.ID,
			Role:       RoleOwner,
			Active:     true,
			JoinedAt:   &now,
		}
		if _, err = h.repo.Memberships().CreateTx(ctx, tx, membership); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create owner membership")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, nil, richErr
		}

		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity registration transaction failed")
	}

	return identity, business, nil
}

// ProvisionOAuthIdentity implements AccountRegistrar. A matching account
// is reused, otherwise a new one is created with a throwaway password
// hash; the provider already verified the email.
func (h *RegisterIdentityHandler) ProvisionOAuthIdentity(ctx context.Context, profile *oauth.Profile) (*Identity, error) {
	if profile == nil || profile.Email == "" {
		return nil, goerrors.New("oauth profile carries no email", goerrors.CategoryBadInput)
	}

	identity := &Identity{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &Identity{
			Email:          normalizeEmail(profile.Email),
			FirstName:      profile.FirstName,
			LastName:       profile.LastName,
			AvatarURL:      profile.AvatarURL,
			PasswordHash:   RandomPasswordHash(),
			EmailValidated: true,
			OAuthProvider:  profile.Provider,
		}
		if h.useHashid {
			if id, err := hashid.NewUUID(record.Email); err == nil {
				record.ID = id
			}
		}

		found, err := h.repo.Identities().GetOrRegisterTx(ctx, tx, record)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not provision oauth identity")
		}

		identity = found
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "oauth provisioning transaction failed")
	}

	return identity, nil
}
