// internal/view/render.go
//
// Central view engine: embedded page templates wrapped in one shared layout.
//
// Public helpers
// --------------
//   - Render – write a full page to an http.ResponseWriter.
//
// Every page file under templates/ defines a "content" block (and may
// define "title").  At start-up each page is parsed together with
// layout.html into its own set, so pages never collide on block names.
//
// Protected pages
// ---------------
// When the request context carries a Session User (the route guard put it
// there), the layout injects AuthCheckScript into <head>.  The script
// force-navigates to the sign-in route if the marker cookie has gone
// missing, which covers stale HTML served from cache or history.
//
// Style
// -----
// • Oxford commas, two spaces after periods.

package view

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/yanizio/meetgate/internal/auth"
	"github.com/yanizio/meetgate/internal/session"
	"github.com/yanizio/meetgate/internal/user"
)

//go:embed templates/*.html
var files embed.FS

// AuthCheckScript is the startup check injected into protected pages.
const AuthCheckScript = `if (!document.cookie.split("; ").some(function (c) { return c.indexOf("` +
	session.CookieName + `=") === 0; })) { window.location.href = "` + auth.SignInRoute + `"; }`

// AuthCheckScriptSrc is the CSP source expression that allows exactly
// AuthCheckScript to run inline.
var AuthCheckScriptSrc = func() string {
	sum := sha256.Sum256([]byte(AuthCheckScript))
	return "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
}()

// Page is the data handed to every template.
type Page struct {
	Title string
	User  *user.User
	CSRF  string
	Flash string

	// Errors maps form field name ("" for form-level) to a message.
	Errors map[string]string
	// Form echoes submitted values back into inputs.
	Form map[string]string
	// Data carries page-specific values.
	Data any
	// Social shows the social sign-in link.
	Social bool

	protected bool
}

// Protected reports whether the auth check script is emitted.
func (p Page) Protected() bool { return p.protected }

// CheckScript returns AuthCheckScript typed for a <script> body.
func (p Page) CheckScript() template.JS { return template.JS(AuthCheckScript) }

var pages = mustParse()

//
// public helpers
//

// Render writes page name to w.  The Session User, when present in the
// request context, marks the page as protected.
func Render(w http.ResponseWriter, r *http.Request, name string, p Page) error {
	t, ok := pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	if u := auth.UserFrom(r.Context()); u != nil {
		p.User = u
		p.protected = true
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, err := buf.WriteTo(w)
	return err
}

//
// internal: parse
//

func mustParse() map[string]*template.Template {
	names, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		panic(err)
	}
	out := make(map[string]*template.Template, len(names))
	for _, n := range names {
		base := strings.TrimSuffix(path.Base(n), ".html")
		if base == "layout" {
			continue
		}
		t := template.Must(template.New(base).Funcs(funcMap()).
			ParseFS(files, "templates/layout.html", n))
		out[base] = t
	}
	return out
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"dict": dict,
	}
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}
