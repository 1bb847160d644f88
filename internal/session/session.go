// internal/session/session.go
//
// Meetgate – sign-in marker cookie.
//
// Context
//   The gate mirrors a coarse "is logged in" flag into one browser cookie,
//   `meeting-organizer-auth`.  The cookie is a hint only.  It never carries
//   the user, the email, or any token, so it cannot be used to reconstruct
//   identity.  The provider's live identity always wins over it.
//
//   The injected startup script reads the marker from document.cookie, so
//   it is deliberately not HttpOnly.  SameSite is strict.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"net/http"
	"time"
)

const (
	// CookieName is the marker key shared with the startup script.
	CookieName = "meeting-organizer-auth"

	// RememberFor is the marker lifetime when "remember me" is ticked.
	RememberFor = 14 * 24 * time.Hour
	// SessionFor is the marker lifetime otherwise.  Far shorter than the
	// usual "remember me off" convention; kept as specified.
	SessionFor = 10 * time.Hour

	markerValue = "true"
)

// Expiry returns the marker expiry for a sign-in at now.
func Expiry(now time.Time, rememberMe bool) time.Time {
	if rememberMe {
		return now.Add(RememberFor)
	}
	return now.Add(SessionFor)
}

// Marker reads the marker from one request and writes changes to its
// response.  The zero value is not usable; build one with New.
type Marker struct {
	w http.ResponseWriter
	r *http.Request
}

// New binds a Marker to the current request/response pair.
func New(w http.ResponseWriter, r *http.Request) *Marker {
	return &Marker{w: w, r: r}
}

// Present reports whether the request carried a non-empty marker.
func (m *Marker) Present() bool {
	return Present(m.r)
}

// Set writes the marker with the given expiry.
func (m *Marker) Set(expires time.Time) {
	http.SetCookie(m.w, &http.Cookie{
		Name:  CookieName,
		Value: markerValue,
		// The social callback lives under /auth/google; the default path
		// would hide the marker from "/".
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Expires:  expires,
	})
}

// Remove expires the marker.
func (m *Marker) Remove() {
	http.SetCookie(m.w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// Present reports whether r carries the marker.
//
// ok == false when the cookie is missing or empty.
func Present(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	return err == nil && c.Value != ""
}
