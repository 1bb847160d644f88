// internal/identity/firebase/persistence.go
//
// Provider-side credential persistence.
//
// Context
// -------
// A browser SDK keeps the refresh token in browser storage.  The Go binding
// keeps it in one sealed, HttpOnly cookie instead.  This is the provider's
// storage, not the gate's: the gate's own marker cookie stays a bare flag.
//
//   - Credentials are JSON, sealed with XChaCha20-Poly1305 under a 32-byte
//     key, then base64url-encoded.  Tampering fails Open.
//   - Save and Clear may run on any goroutine.  They only record the
//     pending change; the Set-Cookie header is written on the request
//     goroutine just before the response header goes out, or when the
//     handler returns.  A change recorded after that point stays in memory
//     for the rest of the request and the old refresh token keeps working.
package firebase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// CookieName holds the sealed provider credentials.
const CookieName = "meeting-organizer-idp"

// PersistFor is the lifetime of the sealed credential cookie.
const PersistFor = 30 * 24 * time.Hour

var ErrSealed = errors.New("sealed credentials invalid")

// Credentials is what the provider remembers between requests.
type Credentials struct {
	RefreshToken string `json:"rt"`
	IDToken      string `json:"it,omitempty"`
}

// Persistence stores one visitor's provider credentials.
type Persistence interface {
	Load() (Credentials, bool)
	Save(Credentials) error
	Clear()
}

type persistenceKey struct{}

// WithPersistence returns ctx carrying p.
func WithPersistence(ctx context.Context, p Persistence) context.Context {
	return context.WithValue(ctx, persistenceKey{}, p)
}

// PersistenceFrom returns the Persistence in ctx or nil.
func PersistenceFrom(ctx context.Context) Persistence {
	p, _ := ctx.Value(persistenceKey{}).(Persistence)
	return p
}

//
// Sealer
//

// Sealer encrypts and authenticates cookie payloads.
type Sealer struct {
	key []byte
}

// NewSealer accepts a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealer key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal returns base64url(nonce | ciphertext).
func (s *Sealer) Seal(plain []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, plain, []byte(CookieName))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrSealed
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrSealed
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], []byte(CookieName))
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

//
// Cookie persistence
//

// cookieStore is the per-request Persistence behind CookiePersistence.
type cookieStore struct {
	sealer *Sealer
	r      *http.Request

	mu sync.Mutex
	// pending reflects writes made during this request.
	pending *Credentials
	cleared bool
	// out is the cookie to emit, nil when nothing changed.
	out     *http.Cookie
	flushed bool
}

// CookiePersistence is middleware that installs a sealed-cookie
// Persistence on every request.
func CookiePersistence(s *Sealer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := &cookieStore{sealer: s, r: r}
			pw := &persistWriter{ResponseWriter: w, store: store}
			next.ServeHTTP(pw, r.WithContext(WithPersistence(r.Context(), store)))
			store.flush(w.Header())
		})
	}
}

func (c *cookieStore) Load() (Credentials, bool) {
	c.mu.Lock()
	cleared, pending := c.cleared, c.pending
	c.mu.Unlock()
	if cleared {
		return Credentials{}, false
	}
	if pending != nil {
		return *pending, true
	}
	ck, err := c.r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return Credentials{}, false
	}
	plain, err := c.sealer.Open(ck.Value)
	if err != nil {
		return Credentials{}, false
	}
	var cr Credentials
	if err := json.Unmarshal(plain, &cr); err != nil || cr.RefreshToken == "" {
		return Credentials{}, false
	}
	return cr, true
}

func (c *cookieStore) Save(cr Credentials) error {
	plain, err := json.Marshal(cr)
	if err != nil {
		return err
	}
	sealed, err := c.sealer.Seal(plain)
	if err != nil {
		return err
	}
	ck := &http.Cookie{
		Name:     CookieName,
		Value:    sealed,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(PersistFor / time.Second),
	}
	c.mu.Lock()
	c.pending, c.cleared, c.out = &cr, false, ck
	c.mu.Unlock()
	return nil
}

func (c *cookieStore) Clear() {
	ck := &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	}
	c.mu.Lock()
	c.pending, c.cleared, c.out = nil, true, ck
	c.mu.Unlock()
}

// flush writes the pending cookie into h once.  Request goroutine only.
func (c *cookieStore) flush(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushed {
		return
	}
	c.flushed = true
	if c.out != nil {
		if v := c.out.String(); v != "" {
			h.Add("Set-Cookie", v)
		}
	}
}

// persistWriter flushes the pending credential cookie before the response
// header is written.
type persistWriter struct {
	http.ResponseWriter
	store *cookieStore
}

func (w *persistWriter) WriteHeader(code int) {
	w.store.flush(w.ResponseWriter.Header())
	w.ResponseWriter.WriteHeader(code)
}

func (w *persistWriter) Write(b []byte) (int, error) {
	w.store.flush(w.ResponseWriter.Header())
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *persistWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

//
// Memory persistence
//

// Memory is an in-process Persistence for tests and the probe command.
// Safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	creds *Credentials
}

func (m *Memory) Load() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false
	}
	return *m.creds, true
}

func (m *Memory) Save(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &c
	return nil
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
}
