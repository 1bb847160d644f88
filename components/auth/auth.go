// components/auth/auth.go
//
// Authentication component: sign-in, sign-up, password reset, social
// sign-in, and sign-out pages.
//
/*
Context
--------
Every POST handler follows one shape:

  1. Verify the CSRF token, bind the form, and validate it.
  2. Build a Session Mirror for this request and call one operation.
  3. On success redirect (303) wherever the mirror navigated.
     On failure re-render the sign-in page with a message that never
     echoes the provider's own wording.

The social flow keeps its OAuth `state` in a short-lived HttpOnly cookie
scoped to /auth/google and compares it in constant time on callback.

Routes
------
  GET  /signIn                 public form page
  POST /signIn                 password sign-in
  POST /signUp                 account creation
  POST /forgotPassword         neutral notice, always
  GET  /auth/google            redirect to the provider
  GET  /auth/google/callback   finish social sign-in
  POST /signOut                sign out, back to /signIn
*/
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	gate "github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/form"
	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/requestinfo"
	"github.com/yanizio/meetgate/internal/session"
	"github.com/yanizio/meetgate/internal/view"
)

// StateCookie carries the OAuth state between /auth/google and its callback.
const StateCookie = "meeting-organizer-oauth-state"

// ResetNotice is shown after every password reset request.
const ResetNotice = "If an account exists for that email, a reset link is on its way."

// Form names, also used by the template to place errors.
const (
	formSignIn = "signIn"
	formSignUp = "signUp"
	formForgot = "forgotPassword"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Component encapsulates the auth pages.
type Component struct{}

func init() { component.Register(&Component{}) }

// Name returns the canonical component key.
func (c *Component) Name() string { return "auth" }

// Routes mounts every auth endpoint.  All of them are public.
func (c *Component) Routes(r chi.Router, d component.Deps) {
	h := &handlers{d: d, log: d.Log}
	if h.log == nil {
		h.log = zap.S()
	}
	r.Get(gate.SignInRoute, h.signInPage)
	r.Post(gate.SignInRoute, h.signIn)
	r.Post("/signUp", h.signUp)
	r.Post("/forgotPassword", h.forgotPassword)
	r.Get("/auth/google", h.google)
	r.Get("/auth/google/callback", h.googleCallback)
	r.Post("/signOut", h.signOut)
}

/*──────────────────────────── forms ───────────────────────────────────────*/

type credentials struct {
	Email    string `form:"email"    validate:"required,email,max=254"`
	Password string `form:"password" validate:"required,min=6,max=128"`
}

type resetRequest struct {
	Email string `form:"email" validate:"required,email,max=254"`
}

/*──────────────────────────── handlers ────────────────────────────────────*/

type handlers struct {
	d   component.Deps
	log *zap.SugaredLogger
}

// mirror builds the per-request Session Mirror and its redirect target.
func (h *handlers) mirror(w http.ResponseWriter, r *http.Request) (*gate.Mirror, *gate.Redirector) {
	nav := &gate.Redirector{}
	m := gate.New(gate.Deps{
		Provider:  h.d.Provider,
		Cookies:   session.New(w, r),
		Navigator: nav,
		Log:       h.log,
	})
	return m, nav
}

func (h *handlers) signInPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, view.Page{Data: formSignIn})
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindCredentials(w, r, formSignIn)
	if !ok {
		return
	}
	remember := r.PostForm.Get("remember_me") == "true"

	m, nav := h.mirror(w, r)
	defer m.Close()

	if err := m.SignIn(r.Context(), in.Email, in.Password, remember); err != nil {
		h.log.Infow("sign-in failed", "client", requestinfo.Summary(r.Context()), "err", err)
		h.fail(w, r, formSignIn, in.Email, err)
		return
	}
	h.log.Infow("signed in", "method", "password", "remember", remember,
		"client", requestinfo.Summary(r.Context()))
	http.Redirect(w, r, nav.Target(), http.StatusSeeOther)
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bindCredentials(w, r, formSignUp)
	if !ok {
		return
	}

	m, nav := h.mirror(w, r)
	defer m.Close()

	if err := m.SignUp(r.Context(), in.Email, in.Password); err != nil {
		h.log.Infow("sign-up failed", "client", requestinfo.Summary(r.Context()), "err", err)
		h.fail(w, r, formSignUp, in.Email, err)
		return
	}
	h.log.Infow("signed up", "client", requestinfo.Summary(r.Context()))
	http.Redirect(w, r, nav.Target(), http.StatusSeeOther)
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r, formForgot) {
		return
	}
	in := resetRequest{Email: strings.TrimSpace(r.PostForm.Get("email"))}
	if errs := form.Validate(&in); errs != nil {
		h.render(w, r, http.StatusUnprocessableEntity, view.Page{Data: formForgot, Errors: errs})
		return
	}

	m, _ := h.mirror(w, r)
	defer m.Close()
	m.RequestPasswordReset(r.Context(), in.Email)

	h.render(w, r, http.StatusOK, view.Page{Data: formSignIn, Flash: ResetNotice})
}

func (h *handlers) google(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.log.Errorw("oauth state", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	target, err := h.d.Provider.SocialAuthURL(state)
	if errors.Is(err, identity.ErrSocialUnavailable) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Errorw("social auth url", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *handlers) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ck, err := r.Cookie(StateCookie)
	http.SetCookie(w, &http.Cookie{Name: StateCookie, Path: "/auth/google", MaxAge: -1, HttpOnly: true})

	if e := q.Get("error"); e != "" {
		h.log.Infow("social sign-in cancelled", "reason", e)
		h.render(w, r, http.StatusOK, view.Page{Data: formSignIn,
			Errors: form.Errors{"": "Google sign-in was cancelled."}})
		return
	}
	if err != nil || ck.Value == "" ||
		subtle.ConstantTimeCompare([]byte(ck.Value), []byte(q.Get("state"))) != 1 {
		h.log.Warnw("social sign-in state mismatch", "client", requestinfo.Summary(r.Context()))
		h.render(w, r, http.StatusBadRequest, view.Page{Data: formSignIn,
			Errors: form.Errors{"": "Sign-in link expired.  Please try again."}})
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, nav := h.mirror(w, r)
	defer m.Close()

	if err := m.SignInWithSocialProvider(r.Context(), code); err != nil {
		h.log.Infow("social sign-in failed", "client", requestinfo.Summary(r.Context()), "err", err)
		h.fail(w, r, formSignIn, "", err)
		return
	}
	h.log.Infow("signed in", "method", "social", "client", requestinfo.Summary(r.Context()))

	// The callback arrives from the provider's site, and a redirect chain
	// started cross-site would not send the SameSite=Strict marker.  A
	// same-origin refresh starts a fresh navigation that does.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "0; url="+nav.Target())
	if err := view.Render(w, r, "loading", view.Page{}); err != nil {
		h.log.Errorw("render social hand-off", "err", err)
	}
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r, formSignIn) {
		return
	}
	m, _ := h.mirror(w, r)
	defer m.Close()

	if err := m.SignOut(r.Context()); err != nil {
		h.log.Warnw("sign-out incomplete", "err", err)
	}
	h.log.Infow("signed out", "client", requestinfo.Summary(r.Context()))
	http.Redirect(w, r, gate.SignInRoute, http.StatusSeeOther)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// checkCSRF parses the body and verifies its token, re-rendering on failure.
func (h *handlers) checkCSRF(w http.ResponseWriter, r *http.Request, active string) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	if h.d.CSRF == nil || !h.d.CSRF.Check(r, r.PostForm.Get(form.FieldName)) {
		h.render(w, r, http.StatusForbidden, view.Page{Data: active,
			Errors: form.Errors{"": "Security token invalid.  Please refresh and try again."}})
		return false
	}
	return true
}

func (h *handlers) bindCredentials(w http.ResponseWriter, r *http.Request, active string) (credentials, bool) {
	if !h.checkCSRF(w, r, active) {
		return credentials{}, false
	}
	in := credentials{
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	if errs := form.Validate(&in); errs != nil {
		h.render(w, r, http.StatusUnprocessableEntity, view.Page{Data: active, Errors: errs,
			Form: map[string]string{"email": in.Email}})
		return credentials{}, false
	}
	return in, true
}

// fail maps a provider error to a form message, or a bare 500.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, active, email string, err error) {
	status, msg := http.StatusUnauthorized, ""
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		msg = "Incorrect email or password."
	case errors.Is(err, identity.ErrEmailExists):
		status, msg = http.StatusConflict, "An account with this email already exists."
	case errors.Is(err, identity.ErrWeakPassword):
		status, msg = http.StatusUnprocessableEntity, "Choose a stronger password."
	case errors.Is(err, identity.ErrTooManyAttempts):
		status, msg = http.StatusTooManyRequests, "Too many attempts.  Please try again later."
	case errors.Is(err, identity.ErrUserDisabled):
		status, msg = http.StatusForbidden, "This account has been disabled."
	default:
		h.log.Errorw("identity provider failure", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, status, view.Page{Data: active, Errors: form.Errors{"": msg},
		Form: map[string]string{"email": email}})
}

// render writes the sign-in page with a fresh CSRF token.
func (h *handlers) render(w http.ResponseWriter, r *http.Request, status int, p view.Page) {
	if h.d.CSRF != nil {
		tok, err := h.d.CSRF.Issue(w, r)
		if err != nil {
			h.log.Errorw("csrf token", "err", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		p.CSRF = tok
	}
	p.Social = h.d.Social
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := view.Render(w, r, "signin", p); err != nil {
		h.log.Errorw("render sign-in page", "err", err)
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
