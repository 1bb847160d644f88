package view

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/user"
)

func TestRender_PublicPageHasNoCheckScript(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/signIn", nil)

	require.NoError(t, Render(rec, req, "signin", Page{
		CSRF:   "tok",
		Data:   "signIn",
		Errors: map[string]string{"email": "Enter a valid email address."},
		Form:   map[string]string{"email": "a@b"},
	}))

	body := rec.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotContains(t, body, "scriptCheckAuth")
	assert.Contains(t, body, `value="tok"`)
	assert.Contains(t, body, "Enter a valid email address.")
	assert.Contains(t, body, `value="a@b"`)
	assert.NotContains(t, body, "/auth/google", "social link hidden unless enabled")
}

func TestRender_ProtectedPageInjectsCheckScript(t *testing.T) {
	name, email := "Ada", "a@b.com"
	u := &user.User{UID: "u1", Name: &name, Email: &email}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithUser(req.Context(), u))

	require.NoError(t, Render(rec, req, "home", Page{}))
	body := rec.Body.String()
	assert.Contains(t, body, `<script id="scriptCheckAuth">`)
	assert.Contains(t, body, "meeting-organizer-auth=")
	assert.Contains(t, body, "Welcome, Ada")
	assert.Contains(t, body, "a@b.com")
}

func TestAuthCheckScriptSrcMatchesScript(t *testing.T) {
	sum := sha256.Sum256([]byte(AuthCheckScript))
	assert.Equal(t, "'sha256-"+base64.StdEncoding.EncodeToString(sum[:])+"'", AuthCheckScriptSrc)
}

func TestRender_UnknownPage(t *testing.T) {
	err := Render(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "nope", Page{})
	assert.Error(t, err)
}

func TestDict(t *testing.T) {
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, dict("a", 1, "b", "x", "dangling"))
}
