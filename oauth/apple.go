package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
	appleJWKSURL  = "https://appleid.apple.com/auth/keys"
	appleIssuer   = "https://appleid.apple.com"
)

// AppleConfig holds Sign in with Apple configuration. ClientSecret is the
// pre-signed ES256 client secret JWT Apple requires for the token
// endpoint; generating it from the developer key is the host app's job.
type AppleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL  string
	TokenURL string
	JWKSURL  string

	HTTPClient *http.Client
}

// AppleDefaultScopes returns the default Apple scopes.
func AppleDefaultScopes() []string {
	return []string{"name", "email"}
}

// AppleProvider implements Provider for Sign in with Apple.
type AppleProvider struct {
	config     AppleConfig
	httpClient *http.Client

	jwksOnce sync.Once
	jwks     *keyfunc.JWKS
	jwksErr  error
}

// NewApple creates a new Apple provider.
func NewApple(cfg AppleConfig) *AppleProvider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = AppleDefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = appleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = appleTokenURL
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = appleJWKSURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &AppleProvider{
		config:     cfg,
		httpClient: client,
	}
}

// Name implements Provider.
func (p *AppleProvider) Name() string {
	return "apple"
}

// AuthCodeURL implements Provider. Apple requires response_mode=form_post
// whenever name or email scopes are requested.
func (p *AppleProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(p.config.Scopes, opts...)
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = AppleDefaultScopes()
	}

	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"response_type": {"code"},
		"response_mode": {"form_post"},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
	}

	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params.Set("code_challenge", cfg.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements Provider.
func (p *AppleProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)

	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.CallbackURL},
		"grant_type":    {"authorization_code"},
	}

	if cfg.CodeVerifier != "" {
		data.Set("code_verifier", cfg.CodeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tokenResp appleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, appleError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response", err)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return nil, appleError("exchange", resp.StatusCode, tokenResp.Error, "", nil)
	}
	if tokenResp.IDToken == "" {
		return nil, appleError("exchange", resp.StatusCode, "missing_id_token", "missing id token", nil)
	}

	expiresAt := time.Time{}
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		IDToken:      tokenResp.IDToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// UserInfo implements Provider. Apple has no userinfo endpoint; the
// profile lives in the ID token obtained during the exchange.
func (p *AppleProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	if token == nil || token.IDToken == "" {
		return nil, appleError("user_info", 0, "missing_id_token", "apple profiles come from the id token", nil)
	}
	return p.VerifyIDToken(ctx, token.IDToken, "")
}

// VerifyIDToken implements Provider. The token signature is checked
// against Apple's published JWKS; issuer, audience and nonce are enforced.
func (p *AppleProvider) VerifyIDToken(ctx context.Context, idToken, nonce string) (*Profile, error) {
	jwks, err := p.keySet(ctx)
	if err != nil {
		return nil, err
	}

	claims := &appleIDTokenClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, jwks.Keyfunc,
		jwt.WithIssuer(appleIssuer),
		jwt.WithAudience(p.config.ClientID),
	)
	if err != nil || !token.Valid {
		return nil, wrapRich(ErrInvalidIDToken, err)
	}

	if nonce != "" && claims.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	return &Profile{
		ProviderUserID: claims.Subject,
		Provider:       "apple",
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified.value(),
	}, nil
}

func (p *AppleProvider) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	p.jwksOnce.Do(func() {
		p.jwks, p.jwksErr = keyfunc.Get(p.config.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			Client:            p.httpClient,
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshUnknownKID: true,
		})
	})
	return p.jwks, p.jwksErr
}

type appleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
}

type appleIDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string     `json:"email"`
	EmailVerified stringBool `json:"email_verified"`
	Nonce         string     `json:"nonce"`
}

// stringBool tolerates Apple sending email_verified as "true" or true
// depending on the flow.
type stringBool bool

func (b *stringBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		*b = false
		return nil
	}
	*b = stringBool(parsed)
	return nil
}

func (b stringBool) value() bool {
	return bool(b)
}

func appleError(operation string, status int, code, description string, err error) *ProviderError {
	if description == "" && code != "" {
		description = fmt.Sprintf("apple %s returned %s", operation, code)
	}
	return &ProviderError{
		Provider:    "apple",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
