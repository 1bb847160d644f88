package component

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stub struct{ name, path string }

func (s stub) Name() string { return s.name }
func (s stub) Routes(r chi.Router, _ Deps) {
	r.Get(s.path, func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(s.name)) })
}

func TestRegisterAndMount(t *testing.T) {
	Register(stub{"zeta", "/z"})
	Register(stub{"alpha", "/a"})
	t.Cleanup(func() {
		mu.Lock()
		delete(registry, "zeta")
		delete(registry, "alpha")
		mu.Unlock()
	})

	var names []string
	for _, c := range All() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	r := chi.NewRouter()
	Mount(r, Deps{Log: zap.NewNop().Sugar()})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/z", nil))
	assert.Equal(t, "zeta", rec.Body.String())
}
