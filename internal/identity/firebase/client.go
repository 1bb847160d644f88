// internal/identity/firebase/client.go
//
// Firebase Authentication REST binding for identity.Provider.
//
// Context
// -------
//   - Talks to the Identity Toolkit (`accounts:*`) and Secure Token
//     (`/v1/token`) endpoints with the project's Web API key.
//   - Password checks, token minting, and refresh cadence are Firebase's
//     job.  This file only shapes requests and maps answers and errors.
//   - The client is shared by every request.  Per-visitor provider state
//     (the refresh token) lives in a Persistence carried by the request
//     context; see persistence.go.
//
// Public workflow
// ---------------
//  1. cli := firebase.New(firebase.Config{APIKey: key}, log)
//  2. r.Use(firebase.CookiePersistence(sealer))          // per request
//  3. id, err := cli.SignInWithPassword(ctx, email, pw)  // anywhere
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/meetgate/internal/identity"
)

const (
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"

	// RefreshSkew is how long before ID-token expiry a refresh happens.
	RefreshSkew = 5 * time.Minute
)

//
// SECTION 1.  Construction
//

// SocialExchanger turns a social authorization code into a provider ID
// token Firebase accepts through signInWithIdp.  identity/google
// implements it.
type SocialExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (idToken string, err error)
	ProviderID() string
}

// Config carries the Firebase project settings.
type Config struct {
	APIKey string
	// RequestURI is echoed to signInWithIdp; Firebase requires a value.
	RequestURI string

	// Overridable for tests and emulators.
	IdentityToolkitURL string
	SecureTokenURL     string

	RetryMax int
	Timeout  time.Duration
}

// Client implements identity.Provider.  It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	social SocialExchanger
	log    *zap.SugaredLogger
	now    func() time.Time
	sfg    singleflight.Group
}

// New builds a Client.  Missing URLs default to Google's production hosts.
func New(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.IdentityToolkitURL == "" {
		cfg.IdentityToolkitURL = DefaultIdentityToolkitURL
	}
	if cfg.SecureTokenURL == "" {
		cfg.SecureTokenURL = DefaultSecureTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.S()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveled{log}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, http: rc, log: log, now: time.Now}
}

// WithSocial attaches the social sign-in exchanger and returns c.
func (c *Client) WithSocial(s SocialExchanger) *Client {
	c.social = s
	return c
}

//
// SECTION 2.  identity.Provider
//

// authResponse covers signInWithPassword, signUp, and signInWithIdp.
type authResponse struct {
	LocalID        string `json:"localId"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	PhotoURL       string `json:"photoUrl"`
	ProfilePicture string `json:"profilePicture"`
	IDToken        string `json:"idToken"`
	RefreshToken   string `json:"refreshToken"`
	ExpiresIn      string `json:"expiresIn"`
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	var res authResponse
	err := c.postJSON(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return c.established(ctx, res)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*identity.Identity, error) {
	var res authResponse
	err := c.postJSON(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return c.established(ctx, res)
}

func (c *Client) SocialAuthURL(state string) (string, error) {
	if c.social == nil {
		return "", identity.ErrSocialUnavailable
	}
	return c.social.AuthURL(state), nil
}

func (c *Client) SignInWithIdP(ctx context.Context, code string) (*identity.Identity, error) {
	if c.social == nil {
		return nil, identity.ErrSocialUnavailable
	}
	idToken, err := c.social.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: social exchange: %v", identity.ErrProvider, err)
	}

	post := url.Values{}
	post.Set("id_token", idToken)
	post.Set("providerId", c.social.ProviderID())

	var res authResponse
	err = c.postJSON(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            post.Encode(),
		"requestUri":          c.requestURI(),
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return c.established(ctx, res)
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.postJSON(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// SignOut forgets the visitor's provider credentials.  Firebase has no
// server-side sign-out for client sessions, so this never fails remotely.
func (c *Client) SignOut(ctx context.Context) error {
	if p := PersistenceFrom(ctx); p != nil {
		p.Clear()
	}
	return nil
}

// established converts a sign-in answer and persists its credentials.
func (c *Client) established(ctx context.Context, res authResponse) (*identity.Identity, error) {
	photo := res.PhotoURL
	if photo == "" {
		photo = res.ProfilePicture
	}
	id := &identity.Identity{
		UID:          res.LocalID,
		DisplayName:  res.DisplayName,
		Email:        res.Email,
		PhotoURL:     photo,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    c.now().Add(parseExpiresIn(res.ExpiresIn)),
	}
	if p := PersistenceFrom(ctx); p != nil {
		if err := p.Save(Credentials{RefreshToken: id.RefreshToken, IDToken: id.IDToken}); err != nil {
			c.log.Warnw("persist provider credentials", "err", err)
		}
	}
	return id, nil
}

func (c *Client) requestURI() string {
	if c.cfg.RequestURI != "" {
		return c.cfg.RequestURI
	}
	return "http://localhost"
}

//
// SECTION 3.  Wire helpers
//

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) postJSON(ctx context.Context, method string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	endpoint := c.cfg.IdentityToolkitURL + "/" + method + "?key=" + url.QueryEscape(c.cfg.APIKey)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, "token", out)
}

func (c *Client) do(req *retryablehttp.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", identity.ErrProvider, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", identity.ErrProvider, op, err)
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(body, &ae)
		return mapError(op, resp.StatusCode, ae.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", identity.ErrProvider, op, err)
	}
	return nil
}

// mapError turns Firebase error codes into identity sentinels.  Messages
// look like "WEAK_PASSWORD : Password should be at least 6 characters".
func mapError(op string, status int, msg string) error {
	code := msg
	if i := strings.IndexAny(code, " :"); i != -1 {
		code = code[:i]
	}
	var base error
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL":
		base = identity.ErrInvalidCredentials
	case "EMAIL_EXISTS":
		base = identity.ErrEmailExists
	case "WEAK_PASSWORD":
		base = identity.ErrWeakPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		base = identity.ErrTooManyAttempts
	case "USER_DISABLED":
		base = identity.ErrUserDisabled
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_ID_TOKEN":
		base = identity.ErrNoIdentity
	default:
		base = identity.ErrProvider
	}
	if code == "" {
		code = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s: %s", base, op, code)
}

func parseExpiresIn(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }

var _ identity.Provider = (*Client)(nil)
