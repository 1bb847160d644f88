// internal/server/router.go
//
// Root router.
//
/*
Context
--------
Middleware order, outermost first:

  1. RequestID, RealIP, Recoverer   – chi built-ins
  2. AccessLog                      – one zap line per request
  3. ForceHTTPS                     – 308 to https when enabled
  4. Security                       – headers, CSP allows the check script
  5. requestinfo.Enrich             – UA + IP (+ geo) for audit lines
  6. Options.Persistence            – provider credential storage

`/metrics` and `/healthz` are mounted before the page middleware so probes
stay cheap.  Every registered component then adds its own routes.
*/
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/component"
	"github.com/yanizio/meetgate/internal/middleware"
	"github.com/yanizio/meetgate/internal/requestinfo"
	"github.com/yanizio/meetgate/internal/view"
)

// Options tunes the root router.
type Options struct {
	ForceHTTPS bool
	// Persistence installs the provider's per-request credential store.
	Persistence func(http.Handler) http.Handler
}

// NewRouter builds the root handler and mounts every component.
func NewRouter(opts Options, d component.Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(AccessLog(d.Log))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ForceHTTPS(opts.ForceHTTPS))
		r.Use(middleware.Security(view.AuthCheckScriptSrc))
		r.Use(requestinfo.Enrich)
		if opts.Persistence != nil {
			r.Use(opts.Persistence)
		}
		component.Mount(r, d)
	})
	return r
}

// AccessLog writes one structured line per request.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Infow("http request",
				"id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"dur_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
