package account

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/guard"
	"github.com/yanizio/meetgate/internal/identity/identitytest"
	"github.com/yanizio/meetgate/internal/requestinfo"
	"github.com/yanizio/meetgate/internal/session"
)

func router(fake *identitytest.Fake) chi.Router {
	log := zap.NewNop().Sugar()
	r := chi.NewRouter()
	r.Use(requestinfo.Enrich)
	(&Component{}).Routes(r, component.Deps{
		Provider: fake,
		Guard:    guard.New(fake, guard.Config{SettleTimeout: time.Second}, log),
		Log:      log,
	})
	return r
}

func TestProfile_SignedIn(t *testing.T) {
	fake := identitytest.New(nil)
	fake.Current = identitytest.IdentityFor("a@b.com")

	req := httptest.NewRequest(http.MethodGet, Route, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.91 Safari/537.36")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "true"})
	rec := httptest.NewRecorder()
	router(fake).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "id-token-", "token stays server side")

	var p profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "uid-a@b.com", p.UID)
	assert.Equal(t, "a@b.com", p.Email)
	require.NotNil(t, p.Device)
	assert.Equal(t, "Chrome", p.Device.Browser)
}

func TestProfile_SignedOutRedirects(t *testing.T) {
	rec := httptest.NewRecorder()
	router(identitytest.New(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Route, nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/signIn", rec.Header().Get("Location"))
}
