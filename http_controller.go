package session

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/nyaruka/phonenumbers"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// SessionController exposes the state machine over a JSON API, one route
// per operation. Mobile clients keep their own in-process machine; this
// controller serves web clients and debugging.
type SessionController struct {
	machine      SessionStateMachine
	repo         RepositoryManager
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
}

type SessionControllerOption func(*SessionController)

func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithControllerMailer(mailer Mailer) SessionControllerOption {
	return func(c *SessionController) {
		c.mailer = mailer
	}
}

func WithControllerActivitySink(sink ActivitySink) SessionControllerOption {
	return func(c *SessionController) {
		c.activitySink = normalizeActivitySink(sink)
	}
}

func NewSessionController(machine SessionStateMachine, repo RepositoryManager, opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		machine:      machine,
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.machine == nil {
		panic("Missing SessionStateMachine in session controller...")
	}

	return c
}

// RegisterRoutes registers the session routes on the given group.
func (c *SessionController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/session", c.CurrentSession)
	group.Post("/login", c.Login)
	group.Post("/signup", c.Signup)
	group.Post("/oauth/:provider", c.OAuthLogin)
	group.Post("/logout", c.Logout)
	group.Post("/session/business", c.SelectBusiness)
	group.Post("/session/refresh", c.RefreshBusinesses)
	group.Post("/profile", c.UpdateProfile)
	group.Post("/invitations", c.InviteMember)
	group.Post("/invitations/accept", c.AcceptInvitation)
}

// CurrentSession returns the active snapshot.
func (c *SessionController) CurrentSession(ctx router.Context) error {
	return ctx.JSON(fiber.StatusOK, stateResponse(c.machine.Current()))
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (c *SessionController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		c.logger.Error("login parse payload", "error", err)
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	state := c.machine.Login(ctx.Context(), Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	})

	return respondWithState(ctx, state)
}

// SignupRequest is the account creation payload
type SignupRequest struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	BusinessName    string `form:"business_name" json:"business_name"`
}

// Validate will validate the payload
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.BusinessName, validation.Length(0, 200)),
	)
}

func (c *SessionController) Signup(ctx router.Context) error {
	payload := new(SignupRequest)

	if err := ctx.Bind(payload); err != nil {
		c.logger.Error("signup parse payload", "error", err)
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	state := c.machine.Signup(ctx.Context(), SignupData{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		Phone:        payload.Phone,
		Password:     payload.Password,
		BusinessName: payload.BusinessName,
	})

	return respondWithState(ctx, state)
}

// OAuthRequest carries the artifacts from a client side OAuth flow.
type OAuthRequest struct {
	IDToken     string `form:"id_token" json:"id_token"`
	AccessToken string `form:"access_token" json:"access_token"`
	Code        string `form:"code" json:"code"`
	Nonce       string `form:"nonce" json:"nonce"`
}

// Validate requires at least one usable artifact.
func (r OAuthRequest) Validate() error {
	if r.IDToken == "" && r.AccessToken == "" && r.Code == "" {
		return errors.New("one of id_token, access_token or code is required")
	}
	return nil
}

func (c *SessionController) OAuthLogin(ctx router.Context) error {
	providerName := ctx.Param("provider")
	payload := new(OAuthRequest)

	if err := ctx.Bind(payload); err != nil {
		c.logger.Error("oauth parse payload", "error", err)
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(ctx, err.Error())
	}

	state := c.machine.SignInWithOAuthData(ctx.Context(), providerName, OAuthData{
		IDToken:     payload.IDToken,
		AccessToken: payload.AccessToken,
		Code:        payload.Code,
		Nonce:       payload.Nonce,
	})

	return respondWithState(ctx, state)
}

func (c *SessionController) Logout(ctx router.Context) error {
	state := c.machine.Logout(ctx.Context())
	return ctx.JSON(fiber.StatusOK, stateResponse(state))
}

// SelectBusinessRequest activates a business from the reachable set.
type SelectBusinessRequest struct {
	BusinessID string `form:"business_id" json:"business_id"`
}

func (r SelectBusinessRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BusinessID, validation.Required, is.UUIDv4),
	)
}

func (c *SessionController) SelectBusiness(ctx router.Context) error {
	payload := new(SelectBusinessRequest)

	if err := ctx.Bind(payload); err != nil {
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	current := c.machine.Current()
	if current.Identity == nil {
		return ctx.JSON(fiber.StatusUnauthorized, map[string]string{
			"error": ErrMissingIdentity.Message,
		})
	}

	var target *Business
	for _, b := range current.Businesses {
		if b != nil && b.ID.String() == payload.BusinessID {
			target = b
			break
		}
	}

	if target == nil {
		return ctx.JSON(fiber.StatusNotFound, map[string]string{
			"error": "business is not part of your reachable set",
		})
	}

	state := c.machine.SelectBusiness(ctx.Context(), target)
	return ctx.JSON(fiber.StatusOK, stateResponse(state))
}

func (c *SessionController) RefreshBusinesses(ctx router.Context) error {
	current := c.machine.Current()
	if current.Identity == nil {
		return ctx.JSON(fiber.StatusUnauthorized, map[string]string{
			"error": ErrMissingIdentity.Message,
		})
	}

	state := c.machine.RefreshBusinesses(ctx.Context())
	return ctx.JSON(fiber.StatusOK, stateResponse(state))
}

// UpdateProfileRequest carries the editable identity fields.
type UpdateProfileRequest struct {
	FirstName *string `form:"first_name" json:"first_name"`
	LastName  *string `form:"last_name" json:"last_name"`
	AvatarURL *string `form:"avatar_url" json:"avatar_url"`
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.AvatarURL, validation.Length(0, 2048)),
	)
}

func (c *SessionController) UpdateProfile(ctx router.Context) error {
	payload := new(UpdateProfileRequest)

	if err := ctx.Bind(payload); err != nil {
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	current := c.machine.Current()
	if current.Identity == nil {
		return ctx.JSON(fiber.StatusUnauthorized, map[string]string{
			"error": ErrMissingIdentity.Message,
		})
	}

	update := ProfileUpdate{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		AvatarURL: payload.AvatarURL,
	}

	identity, err := c.repo.Identities().UpdateProfile(ctx.Context(), current.Identity.ID, update)
	if err != nil {
		c.logger.Error("update profile", "error", err)
		return richError(ctx, err)
	}

	state := c.machine.UpdateIdentity(identity)
	return ctx.JSON(fiber.StatusOK, stateResponse(state))
}

// InviteMemberRequest invites an email to join the active business.
type InviteMemberRequest struct {
	Email string `form:"email" json:"email"`
	Role  string `form:"member_role" json:"member_role"`
}

func (r InviteMemberRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Role, validation.Required, validation.By(ValidateMemberRole)),
	)
}

func (c *SessionController) InviteMember(ctx router.Context) error {
	payload := new(InviteMemberRequest)

	if err := ctx.Bind(payload); err != nil {
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	current := c.machine.Current()
	if current.Identity == nil || current.CurrentBusiness == nil {
		return ctx.JSON(fiber.StatusUnauthorized, map[string]string{
			"error": ErrMissingIdentity.Message,
		})
	}

	if !c.machine.HasPermission(PermissionManageTeam) {
		return ctx.JSON(fiber.StatusForbidden, map[string]string{
			"error": "only the owner may manage the team",
		})
	}

	var res *InviteMemberResponse
	req := InviteMemberMessage{
		BusinessID: current.CurrentBusiness.ID,
		Email:      payload.Email,
		Role:       payload.Role,
		InvitedBy:  current.Identity.ID,
		OnResponse: func(resp *InviteMemberResponse) {
			res = resp
		},
	}

	handler := NewInviteMemberHandler(c.repo, c.mailer).
		WithActivitySink(c.activitySink).
		WithLogger(c.logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		c.logger.Error("invite member", "error", err)
		return richError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, map[string]any{
		"invitation": res.Invitation,
	})
}

// AcceptInvitationRequest redeems an invitation token.
type AcceptInvitationRequest struct {
	Token string `form:"token" json:"token"`
}

func (r AcceptInvitationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (c *SessionController) AcceptInvitation(ctx router.Context) error {
	payload := new(AcceptInvitationRequest)

	if err := ctx.Bind(payload); err != nil {
		return badRequest(ctx, "failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(ctx, err)
	}

	current := c.machine.Current()
	if current.Identity == nil {
		return ctx.JSON(fiber.StatusUnauthorized, map[string]string{
			"error": ErrMissingIdentity.Message,
		})
	}

	req := AcceptInvitationMessage{
		Token:      payload.Token,
		IdentityID: current.Identity.ID,
	}

	handler := NewAcceptInvitationHandler(c.repo).
		WithActivitySink(c.activitySink).
		WithLogger(c.logger)

	if err := handler.Execute(ctx.Context(), req); err != nil {
		c.logger.Error("accept invitation", "error", err)
		return richError(ctx, err)
	}

	state := c.machine.RefreshBusinesses(ctx.Context())
	return ctx.JSON(fiber.StatusOK, stateResponse(state))
}

// stateResponse shapes a snapshot for JSON clients.
func stateResponse(s SessionState) map[string]any {
	resp := map[string]any{
		"authenticated":            s.Authenticated,
		"needs_business_selection": s.NeedsBusinessSelection,
		"phase":                    string(s.Phase()),
		"epoch":                    s.Epoch,
		"businesses":               s.Businesses,
	}

	if s.Identity != nil {
		resp["identity"] = s.Identity
	}
	if s.CurrentBusiness != nil {
		resp["current_business"] = s.CurrentBusiness
		resp["current_role"] = string(s.CurrentRole)
	}
	if s.Error != "" {
		resp["error"] = s.Error
	}
	if s.Message != "" {
		resp["message"] = s.Message
	}

	return resp
}

// respondWithState maps authentication outcomes to status codes: a failed
// action carries its message in state.Error, not in a Go error.
func respondWithState(ctx router.Context, state SessionState) error {
	status := fiber.StatusOK
	if state.Error != "" {
		status = fiber.StatusUnauthorized
	}
	return ctx.JSON(status, stateResponse(state))
}

func badRequest(ctx router.Context, message string) error {
	return ctx.JSON(fiber.StatusBadRequest, map[string]string{
		"error": message,
	})
}

func validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

func richError(ctx router.Context, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			status = int(richErr.Code)
		}
		if richErr.Message != "" {
			message = richErr.Message
		}
	}

	return ctx.JSON(status, map[string]string{
		"error": message,
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		keys := make([]string, 0, len(verrs))
		for k := range verrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if verrs[k] != nil {
				out[k] = verrs[k].Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber checks the value parses as a valid number for the
// default region. Empty values pass; pair with validation.Required when
// the field is mandatory.
func ValidatePhoneNumber(defaultRegion string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		parsed, err := phonenumbers.Parse(s, defaultRegion)
		if err != nil {
			return errors.New("must be a valid phone number")
		}
		if !phonenumbers.IsValidNumber(parsed) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// ValidateMemberRole accepts any assignable (non owner) role.
func ValidateMemberRole(value any) error {
	s, _ := value.(string)
	role, ok := ParseRole(s)
	if !ok || role == RoleOwner {
		return errors.New("must be a valid member role")
	}
	return nil
}
