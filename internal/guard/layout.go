package guard

import "net/http"

// Page is the typed layout configuration for one route.
type Page struct {
	// Public pages skip the guard entirely.
	Public bool
	// Render draws the page body (the guarded children).
	Render http.HandlerFunc
}

// Layout returns the handler for p: Render as-is when public, otherwise
// Render behind Protect.
func (g *Guard) Layout(p Page) http.Handler {
	if p.Public {
		return p.Render
	}
	return g.Protect(p.Render)
}
