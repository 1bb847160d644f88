package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/identity"
)

// fakeFirebase records requests and answers from a per-path table.
type fakeFirebase struct {
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string]map[string]any
	forms    map[string]url.Values
	handlers map[string]func(w http.ResponseWriter)
}

func newFakeFirebase(t *testing.T) (*fakeFirebase, *Client) {
	t.Helper()
	f := &fakeFirebase{
		calls:    map[string]int{},
		bodies:   map[string]map[string]any{},
		forms:    map[string]url.Values{},
		handlers: map[string]func(http.ResponseWriter){},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		f.mu.Lock()
		f.calls[r.URL.Path]++
		if r.Header.Get("Content-Type") == "application/json" {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.bodies[r.URL.Path] = body
		} else {
			_ = r.ParseForm()
			f.forms[r.URL.Path] = r.PostForm
		}
		h := f.handlers[r.URL.Path]
		f.mu.Unlock()

		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		APIKey:             "test-key",
		IdentityToolkitURL: srv.URL + "/v1",
		SecureTokenURL:     srv.URL + "/v1",
	}, zap.NewNop().Sugar())
	return f, c
}

func (f *fakeFirebase) on(path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (f *fakeFirebase) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFirebase) body(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func (f *fakeFirebase) form(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path]
}

func fbError(msg string) map[string]any {
	return map[string]any{"error": map[string]any{"code": 400, "message": msg}}
}

func idToken(t *testing.T, email string, exp time.Time) string {
	t.Helper()
	claims := idTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-" + email,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:  "uid-" + email,
		Email:   email,
		Name:    "Ada",
		Picture: "https://img.example/a.png",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return tok
}

func TestSignInWithPassword(t *testing.T) {
	f, c := newFakeFirebase(t)
	f.on("/v1/accounts:signInWithPassword", http.StatusOK, map[string]any{
		"localId":      "uid-1",
		"email":        "a@b.com",
		"displayName":  "Ada",
		"idToken":      "id-1",
		"refreshToken": "rt-1",
		"expiresIn":    "3600",
	})
	mem := &Memory{}
	ctx := WithPersistence(context.Background(), mem)

	id, err := c.SignInWithPassword(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UID)
	assert.Equal(t, "a@b.com", id.Email)
	assert.Equal(t, "Ada", id.DisplayName)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, time.Minute)

	body := f.body("/v1/accounts:signInWithPassword")
	assert.Equal(t, "a@b.com", body["email"])
	assert.Equal(t, true, body["returnSecureToken"])

	cr, ok := mem.Load()
	require.True(t, ok)
	assert.Equal(t, "rt-1", cr.RefreshToken)
	assert.Equal(t, "id-1", cr.IDToken)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"INVALID_LOGIN_CREDENTIALS", identity.ErrInvalidCredentials},
		{"EMAIL_NOT_FOUND", identity.ErrInvalidCredentials},
		{"EMAIL_EXISTS", identity.ErrEmailExists},
		{"WEAK_PASSWORD : Password should be at least 6 characters", identity.ErrWeakPassword},
		{"TOO_MANY_ATTEMPTS_TRY_LATER", identity.ErrTooManyAttempts},
		{"USER_DISABLED", identity.ErrUserDisabled},
		{"SOMETHING_NEW", identity.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			f, c := newFakeFirebase(t)
			f.on("/v1/accounts:signUp", http.StatusBadRequest, fbError(tt.msg))

			_, err := c.SignUp(context.Background(), "a@b.com", "pw")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSendPasswordReset(t *testing.T) {
	f, c := newFakeFirebase(t)
	f.on("/v1/accounts:sendOobCode", http.StatusOK, map[string]any{"email": "a@b.com"})

	require.NoError(t, c.SendPasswordReset(context.Background(), "a@b.com"))
	body := f.body("/v1/accounts:sendOobCode")
	assert.Equal(t, "PASSWORD_RESET", body["requestType"])
	assert.Equal(t, "a@b.com", body["email"])

	f.on("/v1/accounts:sendOobCode", http.StatusBadRequest, fbError("EMAIL_NOT_FOUND"))
	assert.Error(t, c.SendPasswordReset(context.Background(), "x@b.com"))
}

func TestSignOutClearsPersistence(t *testing.T) {
	_, c := newFakeFirebase(t)
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{RefreshToken: "rt"}))

	require.NoError(t, c.SignOut(WithPersistence(context.Background(), mem)))
	_, ok := mem.Load()
	assert.False(t, ok)
}

type fakeSocial struct{ code string }

func (s *fakeSocial) AuthURL(state string) string { return "https://social.example/?state=" + state }
func (s *fakeSocial) ProviderID() string          { return "google.com" }
func (s *fakeSocial) Exchange(_ context.Context, code string) (string, error) {
	s.code = code
	return "google-id-token", nil
}

func TestSignInWithIdP(t *testing.T) {
	f, c := newFakeFirebase(t)
	social := &fakeSocial{}
	c.WithSocial(social)
	f.on("/v1/accounts:signInWithIdp", http.StatusOK, map[string]any{
		"localId":      "uid-g",
		"email":        "g@b.com",
		"photoUrl":     "https://img.example/g.png",
		"idToken":      "id-g",
		"refreshToken": "rt-g",
		"expiresIn":    "3600",
	})

	u, err := c.SocialAuthURL("st")
	require.NoError(t, err)
	assert.Contains(t, u, "state=st")

	id, err := c.SignInWithIdP(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "auth-code", social.code)
	assert.Equal(t, "https://img.example/g.png", id.PhotoURL)

	post, err := url.ParseQuery(f.body("/v1/accounts:signInWithIdp")["postBody"].(string))
	require.NoError(t, err)
	assert.Equal(t, "google-id-token", post.Get("id_token"))
	assert.Equal(t, "google.com", post.Get("providerId"))
}

func TestSignInWithIdP_NotConfigured(t *testing.T) {
	_, c := newFakeFirebase(t)
	_, err := c.SignInWithIdP(context.Background(), "x")
	assert.ErrorIs(t, err, identity.ErrSocialUnavailable)
	_, err = c.SocialAuthURL("x")
	assert.ErrorIs(t, err, identity.ErrSocialUnavailable)
}

func firstEvent(t *testing.T, sub identity.Subscription) identity.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "stream closed before first event")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no identity event")
		return identity.Event{}
	}
}

func TestSubscribe_NoCredentials(t *testing.T) {
	_, c := newFakeFirebase(t)

	sub, err := c.Subscribe(WithPersistence(context.Background(), &Memory{}))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Nil(t, firstEvent(t, sub).Identity)
}

func TestSubscribe_FreshTokenNeedsNoNetwork(t *testing.T) {
	f, c := newFakeFirebase(t)
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{
		RefreshToken: "rt",
		IDToken:      idToken(t, "a@b.com", time.Now().Add(time.Hour)),
	}))

	sub, err := c.Subscribe(WithPersistence(context.Background(), mem))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev := firstEvent(t, sub)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "a@b.com", ev.Identity.Email)
	assert.Equal(t, "uid-a@b.com", ev.Identity.UID)
	assert.Equal(t, "https://img.example/a.png", ev.Identity.PhotoURL)
	assert.Equal(t, 0, f.count("/v1/token"))
}

func TestSubscribe_ExpiredTokenRefreshes(t *testing.T) {
	f, c := newFakeFirebase(t)
	fresh := idToken(t, "a@b.com", time.Now().Add(time.Hour))
	f.on("/v1/token", http.StatusOK, map[string]any{
		"id_token":      fresh,
		"refresh_token": "rt-2",
		"expires_in":    "3600",
		"user_id":       "uid-a@b.com",
	})
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{
		RefreshToken: "rt-1",
		IDToken:      idToken(t, "a@b.com", time.Now().Add(-time.Minute)),
	}))

	sub, err := c.Subscribe(WithPersistence(context.Background(), mem))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev := firstEvent(t, sub)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, fresh, ev.Identity.IDToken)
	assert.Equal(t, 1, f.count("/v1/token"))
	assert.Equal(t, "refresh_token", f.form("/v1/token").Get("grant_type"))
	assert.Equal(t, "rt-1", f.form("/v1/token").Get("refresh_token"))

	cr, ok := mem.Load()
	require.True(t, ok)
	assert.Equal(t, "rt-2", cr.RefreshToken)
}

func TestSubscribe_RevokedRefreshTokenSignsOut(t *testing.T) {
	f, c := newFakeFirebase(t)
	f.on("/v1/token", http.StatusBadRequest, fbError("INVALID_REFRESH_TOKEN"))
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{RefreshToken: "rt-revoked"}))

	sub, err := c.Subscribe(WithPersistence(context.Background(), mem))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Nil(t, firstEvent(t, sub).Identity)
	_, ok := mem.Load()
	assert.False(t, ok, "revoked credentials are forgotten")
}

func TestSubscribe_UnsubscribeClosesStream(t *testing.T) {
	_, c := newFakeFirebase(t)
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{
		RefreshToken: "rt",
		IDToken:      idToken(t, "a@b.com", time.Now().Add(time.Hour)),
	}))

	sub, err := c.Subscribe(WithPersistence(context.Background(), mem))
	require.NoError(t, err)
	firstEvent(t, sub)
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after Unsubscribe")
	}
}

// gateToken makes /v1/token wait for release before answering.
func gateToken(t *testing.T, f *fakeFirebase, release <-chan struct{}) string {
	t.Helper()
	fresh := idToken(t, "a@b.com", time.Now().Add(time.Hour))
	f.mu.Lock()
	f.handlers["/v1/token"] = func(w http.ResponseWriter) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_token":      fresh,
			"refresh_token": "rt-2",
			"expires_in":    "3600",
		})
	}
	f.mu.Unlock()
	return fresh
}

func TestSubscribe_DoesNotWaitForTokenEndpoint(t *testing.T) {
	f, c := newFakeFirebase(t)
	release := make(chan struct{})
	fresh := gateToken(t, f, release)
	mem := &Memory{}
	require.NoError(t, mem.Save(Credentials{RefreshToken: "rt-1"}))

	start := time.Now()
	sub, err := c.Subscribe(WithPersistence(context.Background(), mem))
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-sub.Events():
		t.Fatal("event before the token endpoint answered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	ev := firstEvent(t, sub)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, fresh, ev.Identity.IDToken)
	cr, ok := mem.Load()
	require.True(t, ok)
	assert.Equal(t, "rt-2", cr.RefreshToken)
}

func TestRefresh_SharedRequestOutlivesCancelledCaller(t *testing.T) {
	f, c := newFakeFirebase(t)
	release := make(chan struct{})
	fresh := gateToken(t, f, release)

	first, cancel := context.WithCancel(context.Background())
	gaveUp := make(chan error, 1)
	go func() {
		_, err := c.refresh(first, "rt-1")
		gaveUp <- err
	}()
	require.Eventually(t, func() bool { return f.count("/v1/token") == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-gaveUp:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	// A later caller joins the request still in flight.
	joined := make(chan *identity.Identity, 1)
	go func() {
		id, err := c.refresh(context.Background(), "rt-1")
		assert.NoError(t, err)
		joined <- id
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)

	select {
	case id := <-joined:
		require.NotNil(t, id)
		assert.Equal(t, fresh, id.IDToken)
	case <-time.After(2 * time.Second):
		t.Fatal("joined refresh never returned")
	}
	assert.Equal(t, 1, f.count("/v1/token"))
}
