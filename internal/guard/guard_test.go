package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/identity/firebase"
	"github.com/yanizio/meetgate/internal/identity/identitytest"
	"github.com/yanizio/meetgate/internal/session"
	"github.com/yanizio/meetgate/internal/user"
	"github.com/yanizio/meetgate/internal/view"
)

// silentProvider never answers on its identity stream.
type silentProvider struct{ identitytest.Fake }

func (p *silentProvider) Subscribe(ctx context.Context) (identity.Subscription, error) {
	s := identity.NewStream(ctx)
	go func() {
		<-s.Done()
		s.Close()
	}()
	return s, nil
}

func newGuard(p identity.Provider) *Guard {
	return New(p, Config{SettleTimeout: 50 * time.Millisecond, PollAfter: time.Second}, zap.NewNop().Sugar())
}

func withMarker(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "true"})
	return r
}

func TestDecide(t *testing.T) {
	email := "a@b.com"
	signedIn := &user.User{UID: "u", Email: &email}

	tests := []struct {
		name  string
		state auth.State
		want  Decision
	}{
		{"loaded with user", auth.State{User: signedIn}, Render},
		{"loading without user", auth.State{Loading: true}, Loading},
		{"loading with user", auth.State{User: signedIn, Loading: true}, Loading},
		{"loaded without user", auth.State{}, Redirect},
		{"loaded user without email", auth.State{User: &user.User{UID: "u"}}, Redirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state))
		})
	}
}

func TestDecide_PlaceholderThenRedirectWithoutMarker(t *testing.T) {
	m := auth.New(auth.Deps{
		Provider:  identitytest.New(nil),
		Cookies:   session.New(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)),
		Navigator: &auth.Redirector{},
		Log:       zap.NewNop().Sugar(),
	})
	defer m.Close()

	assert.Equal(t, Loading, Decide(m.State()))
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, Redirect, Decide(m.State()))
}

func TestProtect_NoMarkerRedirects(t *testing.T) {
	called := false
	h := newGuard(identitytest.New(nil)).Protect(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, auth.SignInRoute, rec.Header().Get("Location"))
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestProtect_SignedInRendersWithCheckScript(t *testing.T) {
	p := identitytest.New(nil)
	p.Current = identitytest.IdentityFor("a@b.com")

	var seen *user.User
	h := newGuard(p).Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.UserFrom(r.Context())
		require.NoError(t, view.Render(w, r, "home", view.Page{}))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withMarker(httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "a@b.com", seen.EmailOrEmpty())
	assert.Contains(t, rec.Body.String(), `id="scriptCheckAuth"`)
	assert.Contains(t, rec.Body.String(), session.CookieName)
	assert.Equal(t, 1, p.UnsubscribedCount(), "subscription cancelled when the request ends")
}

func TestProtect_StaleMarkerRedirectsAndClears(t *testing.T) {
	h := newGuard(identitytest.New(nil)).Protect(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withMarker(httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestProtect_SlowProviderServesPlaceholder(t *testing.T) {
	called := false
	h := newGuard(&silentProvider{}).Protect(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withMarker(httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Contains(t, rec.Body.String(), "<div>Loading</div>")
	assert.NotContains(t, rec.Body.String(), "scriptCheckAuth")
}

func TestProtect_SlowTokenEndpointServesPlaceholder(t *testing.T) {
	release := make(chan struct{})
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"TOKEN_EXPIRED"}}`))
	}))
	defer tokenSrv.Close()
	defer close(release)

	cli := firebase.New(firebase.Config{
		APIKey:             "k",
		IdentityToolkitURL: tokenSrv.URL,
		SecureTokenURL:     tokenSrv.URL,
		Timeout:            10 * time.Second,
	}, zap.NewNop().Sugar())

	// Only a refresh token is stored, so resolving the visitor needs the
	// token endpoint.
	creds := &firebase.Memory{}
	require.NoError(t, creds.Save(firebase.Credentials{RefreshToken: "rt"}))

	called := false
	h := newGuard(cli).Protect(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	req := withMarker(httptest.NewRequest(http.MethodGet, "/", nil))
	req = req.WithContext(firebase.WithPersistence(req.Context(), creds))

	rec := httptest.NewRecorder()
	start := time.Now()
	h.ServeHTTP(rec, req)

	assert.Less(t, time.Since(start), time.Second, "settle timeout bounds the wait")
	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Contains(t, rec.Body.String(), "<div>Loading</div>")
	_, ok := creds.Load()
	assert.True(t, ok, "credentials kept while the provider is pending")
}

func TestLayout(t *testing.T) {
	g := newGuard(identitytest.New(nil))
	body := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("children"))
	})

	rec := httptest.NewRecorder()
	g.Layout(Page{Public: true, Render: body}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "children", rec.Body.String())

	rec = httptest.NewRecorder()
	g.Layout(Page{Render: body}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}
