// Package home serves the protected landing page.
package home

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	gate "github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/guard"
	"github.com/yanizio/meetgate/internal/view"
)

var _ component.Component = (*Component)(nil)

// Component renders "/" behind the route guard.
type Component struct{}

func init() { component.Register(&Component{}) }

func (c *Component) Name() string { return "home" }

func (c *Component) Routes(r chi.Router, d component.Deps) {
	log := d.Log
	if log == nil {
		log = zap.S()
	}
	r.Method(http.MethodGet, gate.HomeRoute, d.Guard.Layout(guard.Page{
		Render: func(w http.ResponseWriter, r *http.Request) {
			var p view.Page
			if d.CSRF != nil {
				tok, err := d.CSRF.Issue(w, r)
				if err != nil {
					log.Errorw("csrf token", "err", err)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				p.CSRF = tok
			}
			if err := view.Render(w, r, "home", p); err != nil {
				log.Errorw("render home", "err", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		},
	}))
}
