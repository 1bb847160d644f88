// components/account/account.go
//
// Account component – JSON view of the signed-in visitor and the device
// the request came from.  The route sits behind the guard like any other
// protected page, so a signed-out caller is sent to /signIn.
package account

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	gate "github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/guard"
	"github.com/yanizio/meetgate/internal/requestinfo"
)

// Route serves the JSON document.
const Route = "/api/me"

var _ component.Component = (*Component)(nil)

type Component struct{}

func init() { component.Register(&Component{}) }

func (c *Component) Name() string { return "account" }

// profile is the response body.  The ID token is never included.
type profile struct {
	UID    string  `json:"uid"`
	Name   string  `json:"name,omitempty"`
	Email  string  `json:"email"`
	ImgURL string  `json:"imgUrl,omitempty"`
	Device *device `json:"device,omitempty"`
}

type device struct {
	Browser  string `json:"browser,omitempty"`
	Version  string `json:"version,omitempty"`
	OS       string `json:"os,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
	Language string `json:"lang,omitempty"`
}

func (c *Component) Routes(r chi.Router, d component.Deps) {
	log := d.Log
	if log == nil {
		log = zap.S()
	}
	r.Method(http.MethodGet, Route, d.Guard.Layout(guard.Page{
		Render: func(w http.ResponseWriter, r *http.Request) {
			u := gate.UserFrom(r.Context())
			if u == nil {
				http.Redirect(w, r, gate.SignInRoute, http.StatusFound)
				return
			}
			p := profile{
				UID:    u.UID,
				Name:   u.NameOrEmpty(),
				Email:  u.EmailOrEmpty(),
				ImgURL: u.ImgURLOrEmpty(),
			}
			if ri := requestinfo.FromContext(r.Context()); ri != nil {
				p.Device = &device{
					Browser:  ri.UA.Browser,
					Version:  ri.UA.Version,
					OS:       ri.UA.OS,
					Kind:     ri.UA.Device,
					Country:  ri.Geo.CountryISO,
					City:     ri.Geo.City,
					Language: ri.UA.Lang,
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "no-store")
			if err := json.NewEncoder(w).Encode(p); err != nil {
				log.Warnw("encode profile", "err", err)
			}
		},
	}))
}
