// internal/guard/guard.go
//
// Route Guard: keeps signed-out visitors off protected pages.
//
// Context
// -------
// For every protected request the guard builds a Session Mirror bound to
// that request's marker cookie, runs its startup effect, and waits up to
// SettleTimeout for loading to finish.  The outcome is one of:
//
//   - Render    – the user has an email.  The page runs with the user in its
//                 context, and the layout injects the startup cookie check.
//   - Loading   – the provider has not answered yet.  A placeholder page is
//                 served and the browser re-polls after PollAfter.
//   - Redirect  – no user.  302 to the sign-in route with an empty body.
//
// Decide is the pure half of this and holds all branching.
//
// Notes
// -----
// • A marker left behind by a provider-side sign-out is removed on the
//   redirect path; the provider's answer wins over the cookie.
// • Oxford commas, two spaces after periods.

package guard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/metrics"
	"github.com/yanizio/meetgate/internal/requestinfo"
	"github.com/yanizio/meetgate/internal/session"
	"github.com/yanizio/meetgate/internal/view"
)

// Decision is the guard's verdict for one render.
type Decision int

const (
	Redirect Decision = iota
	Loading
	Render
)

func (d Decision) String() string {
	switch d {
	case Render:
		return metrics.DecisionRender
	case Loading:
		return metrics.DecisionLoading
	default:
		return metrics.DecisionRedirect
	}
}

// Decide maps mirror state to a Decision.
func Decide(s auth.State) Decision {
	switch {
	case !s.Loading && s.User.HasEmail():
		return Render
	case s.Loading:
		return Loading
	default:
		return Redirect
	}
}

// Config tunes the guard.
type Config struct {
	// SettleTimeout bounds how long a request waits for the provider.
	SettleTimeout time.Duration
	// PollAfter is the Refresh delay sent with the loading placeholder.
	PollAfter time.Duration
}

// Guard protects handlers.  Build one with New and share it.
type Guard struct {
	provider identity.Provider
	cfg      Config
	log      *zap.SugaredLogger
}

// New returns a Guard.  Zero Config fields fall back to 2s / 1s.
func New(p identity.Provider, cfg Config, log *zap.SugaredLogger) *Guard {
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 2 * time.Second
	}
	if cfg.PollAfter <= 0 {
		cfg.PollAfter = time.Second
	}
	if log == nil {
		log = zap.S()
	}
	return &Guard{provider: p, cfg: cfg, log: log}
}

// Protect wraps next with the guard.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		marker := session.New(w, r)
		m := auth.New(auth.Deps{
			Provider:  g.provider,
			Cookies:   marker,
			Navigator: &auth.Redirector{},
			Log:       g.log,
		})
		defer m.Close()

		if err := m.Init(r.Context()); err != nil {
			g.log.Warnw("guard init failed", "path", r.URL.Path, "err", err)
		}

		ctx, cancel := context.WithTimeout(r.Context(), g.cfg.SettleTimeout)
		state, _ := m.Wait(ctx, func(s auth.State) bool { return !s.Loading })
		cancel()

		d := Decide(state)
		metrics.GuardDecisionsTotal.WithLabelValues(d.String()).Inc()
		w.Header().Set("Cache-Control", "no-store")

		switch d {
		case Render:
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), state.User)))

		case Loading:
			w.Header().Set("Refresh", strconv.Itoa(int(g.cfg.PollAfter.Seconds()+0.5)))
			if err := view.Render(w, r, "loading", view.Page{}); err != nil {
				g.log.Errorw("render loading placeholder", "err", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}

		default:
			if marker.Present() {
				marker.Remove()
			}
			g.log.Debugw("guard redirect",
				"path", r.URL.Path,
				"client", requestinfo.Summary(r.Context()),
			)
			w.Header().Set("Location", auth.SignInRoute)
			w.WriteHeader(http.StatusFound)
		}
	})
}
