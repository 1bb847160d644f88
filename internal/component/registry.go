// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  The server hands every
// registered component the shared router and Deps once at startup.

package component

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/form"
	"github.com/yanizio/meetgate/internal/guard"
	"github.com/yanizio/meetgate/internal/identity"
)

// Deps is what the server shares with components.
type Deps struct {
	Provider identity.Provider
	Guard    *guard.Guard
	CSRF     *form.CSRF
	Log      *zap.SugaredLogger
	// Social is true when a social sign-in exchanger is configured.
	Social bool
}

// Component contract.  Routes registers page and form endpoints on r,
// wrapping protected pages with d.Guard.Layout.
type Component interface {
	Name() string
	Routes(r chi.Router, d Deps)
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Mount registers every component on r.
func Mount(r chi.Router, d Deps) {
	for _, c := range All() {
		c.Routes(r, d)
		d.Log.Debugw("component mounted", "component", c.Name())
	}
}
