package requestinfo

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avct/uasurfer"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func TestEnrich(t *testing.T) {
	var got *RequestInfo
	h := middleware.RealIP(Enrich(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/signIn?code=secret", nil)
	req.Header.Set("User-Agent", chromeMac)
	req.Header.Set("Accept-Language", "en-GB;q=0.9,en;q=0.8")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "Chrome", got.UA.Browser)
	assert.Equal(t, "124", got.UA.Version)
	assert.Equal(t, "macOS", got.UA.OS)
	assert.Equal(t, "Desktop", got.UA.Device)
	assert.Equal(t, "en-gb", got.UA.Lang)
	assert.False(t, got.UA.IsBot)
	assert.Equal(t, "/signIn", got.Path)
	assert.True(t, net.ParseIP("203.0.113.9").Equal(got.Geo.IP))
	assert.Empty(t, got.Geo.CountryISO, "no geo database loaded")
}

func TestSummary(t *testing.T) {
	assert.Empty(t, Summary(context.Background()))

	ctx := WithInfo(context.Background(), &RequestInfo{
		UA:  UA{Browser: "Firefox", OS: "Linux", Device: "Desktop"},
		Geo: Geo{IP: net.ParseIP("198.51.100.7"), CountryISO: "NL"},
	})
	assert.Equal(t, "Firefox/Linux/Desktop 198.51.100.7 [NL]", Summary(ctx))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", primaryLang(""))
	assert.Equal(t, "fr", primaryLang("FR"))
	assert.Equal(t, "1.2", version(uasurfer.Version{Major: 1, Minor: 2}))
	assert.Equal(t, "0", version(uasurfer.Version{}))
	assert.NoError(t, InitGeo(""))
	assert.Error(t, InitGeo("/does/not/exist.mmdb"))
}
