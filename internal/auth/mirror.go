// internal/auth/mirror.go
//
// Session Mirror.
//
/*
Context
--------
A Mirror owns the `user` / `loading` pair for one page session and keeps
the sign-in marker cookie in step with it.  It is built explicitly with
its collaborators (provider, cookie marker, navigator, clock, logger) and
has an Init / Close lifecycle:

  1. New            – state starts as {User: nil, Loading: true}.
  2. Init(ctx)      – marker present → subscribe to the provider's
                      identity stream; marker absent → Loading = false.
  3. operations     – SignIn, SignUp, SignInWithSocialProvider,
                      RequestPasswordReset, SignOut.
  4. Close()        – cancels the identity subscription.

Ordering
--------
On a successful sign-in the user is set first, then the marker is written,
then the navigator is told to go home.  Nothing happens before the
provider call returns.

Notes
-----
  • Identity events arrive on the provider's goroutine, so state is
    mutex-guarded and change notification is a closed-channel broadcast.
  • The Mirror never touches the response from the event goroutine; the
    guard removes a stale marker on its own goroutine.
  • Oxford commas, two spaces after periods.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/metrics"
	"github.com/yanizio/meetgate/internal/session"
	"github.com/yanizio/meetgate/internal/user"
)

// Routes the mirror navigates between.
const (
	HomeRoute   = "/"
	SignInRoute = "/signIn"
)

// ErrClosed is returned by Init after Close.
var ErrClosed = errors.New("session mirror closed")

/*──────────────────────────── collaborators ────────────────────────────────*/

// Cookies is the marker store.  *session.Marker satisfies it.
type Cookies interface {
	Present() bool
	Set(expires time.Time)
	Remove()
}

// Navigator moves the visitor to another route.
type Navigator interface {
	Navigate(path string)
}

// Deps bundles everything a Mirror needs.  Provider, Cookies, and
// Navigator are required.
type Deps struct {
	Provider  identity.Provider
	Cookies   Cookies
	Navigator Navigator
	Now       func() time.Time
	Log       *zap.SugaredLogger
}

// State is a snapshot of the mirrored session.
type State struct {
	User    *user.User
	Loading bool
}

/*──────────────────────────────── Mirror ──────────────────────────────────*/

// Mirror is safe for concurrent use.
type Mirror struct {
	provider identity.Provider
	cookies  Cookies
	nav      Navigator
	now      func() time.Time
	log      *zap.SugaredLogger

	mu      sync.Mutex
	state   State
	changed chan struct{}
	sub     identity.Subscription
	pumped  chan struct{}
	closed  bool
}

// New builds a Mirror in the loading state.
func New(d Deps) *Mirror {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.S()
	}
	return &Mirror{
		provider: d.Provider,
		cookies:  d.Cookies,
		nav:      d.Navigator,
		now:      d.Now,
		log:      d.Log,
		state:    State{Loading: true},
		changed:  make(chan struct{}),
	}
}

// Init runs the startup effect.  With no marker the mirror settles at once
// as signed-out; otherwise it follows the provider's identity stream until
// Close.  A subscribe failure also settles signed-out and is returned.
func (m *Mirror) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	if !m.cookies.Present() {
		m.setLoading(false)
		return nil
	}

	sub, err := m.provider.Subscribe(ctx)
	if err != nil {
		m.set(nil, false)
		return fmt.Errorf("subscribe identity: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	m.sub = sub
	m.pumped = make(chan struct{})
	m.mu.Unlock()

	go m.pump(sub, m.pumped)
	return nil
}

// Close cancels the identity subscription and waits for the event pump to
// drain.  Safe to call more than once.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sub, pumped := m.sub, m.pumped
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		<-pumped
	}
}

// Subscribed reports whether Init opened an identity subscription.
func (m *Mirror) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}

func (m *Mirror) pump(sub identity.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		u := user.FromIdentity(ev.Identity)
		if !u.HasEmail() {
			u = nil
		}
		m.set(u, false)
	}
}

/*──────────────────────────────── state ───────────────────────────────────*/

// State returns the current snapshot.
func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wait blocks until pred holds for the current state or ctx ends.  It
// returns the last observed state either way.
func (m *Mirror) Wait(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		m.mu.Lock()
		s, ch := m.state, m.changed
		m.mu.Unlock()

		if pred(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

func (m *Mirror) set(u *user.User, loading bool) {
	m.mu.Lock()
	m.state = State{User: u, Loading: loading}
	m.notifyLocked()
	m.mu.Unlock()
}

func (m *Mirror) setUser(u *user.User) {
	m.mu.Lock()
	m.state.User = u
	m.notifyLocked()
	m.mu.Unlock()
}

func (m *Mirror) setLoading(v bool) {
	m.mu.Lock()
	m.state.Loading = v
	m.notifyLocked()
	m.mu.Unlock()
}

func (m *Mirror) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

/*────────────────────────────── operations ────────────────────────────────*/

// SignIn signs in with email and password.  On success the marker lives
// for 14 days with rememberMe, otherwise 10 hours.
func (m *Mirror) SignIn(ctx context.Context, email, password string, rememberMe bool) error {
	m.setLoading(true)
	defer m.setLoading(false)

	id, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		metrics.SignInTotal.WithLabelValues(metrics.MethodPassword, metrics.ResultFailure).Inc()
		m.log.Infow("sign-in rejected", "method", metrics.MethodPassword, "err", err)
		return fmt.Errorf("sign in: %w", err)
	}
	m.established(id, rememberMe)
	metrics.SignInTotal.WithLabelValues(metrics.MethodPassword, metrics.ResultSuccess).Inc()
	return nil
}

// SignUp creates an account and signs it in with the short marker expiry.
func (m *Mirror) SignUp(ctx context.Context, email, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	id, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		metrics.SignInTotal.WithLabelValues(metrics.MethodSignUp, metrics.ResultFailure).Inc()
		m.log.Infow("sign-up rejected", "err", err)
		return fmt.Errorf("sign up: %w", err)
	}
	m.established(id, false)
	metrics.SignInTotal.WithLabelValues(metrics.MethodSignUp, metrics.ResultSuccess).Inc()
	return nil
}

// SignInWithSocialProvider completes the social flow with the authorization
// code.  It leaves loading alone and always uses the long marker expiry.
func (m *Mirror) SignInWithSocialProvider(ctx context.Context, code string) error {
	id, err := m.provider.SignInWithIdP(ctx, code)
	if err != nil {
		metrics.SignInTotal.WithLabelValues(metrics.MethodSocial, metrics.ResultFailure).Inc()
		m.log.Infow("social sign-in rejected", "err", err)
		return fmt.Errorf("social sign in: %w", err)
	}
	m.established(id, true)
	metrics.SignInTotal.WithLabelValues(metrics.MethodSocial, metrics.ResultSuccess).Inc()
	return nil
}

// RequestPasswordReset asks the provider to send a reset email.  It is
// best-effort: failures are logged and never returned.
func (m *Mirror) RequestPasswordReset(ctx context.Context, email string) {
	if err := m.provider.SendPasswordReset(ctx, email); err != nil {
		metrics.PasswordResetTotal.WithLabelValues(metrics.ResultFailure).Inc()
		m.log.Warnw("password reset request failed", "err", err)
		return
	}
	metrics.PasswordResetTotal.WithLabelValues(metrics.ResultSuccess).Inc()
}

// SignOut signs out at the provider, clears the user, and removes the
// marker.  The local session is cleared even when the provider call fails;
// that failure is still returned.
func (m *Mirror) SignOut(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	err := m.provider.SignOut(ctx)
	m.setUser(nil)
	m.cookies.Remove()
	if err != nil {
		m.log.Warnw("provider sign-out failed", "err", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// established records a fresh identity, writes the marker, and goes home.
func (m *Mirror) established(id *identity.Identity, rememberMe bool) {
	m.setUser(user.FromIdentity(id))
	m.cookies.Set(session.Expiry(m.now(), rememberMe))
	m.nav.Navigate(HomeRoute)
}
