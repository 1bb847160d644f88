// Package identitytest provides an in-memory identity.Provider for tests.
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/yanizio/meetgate/internal/identity"
)

// Fake is a scriptable identity.Provider.  Accounts maps email to
// password; the remaining fields force failures or inspect calls.
type Fake struct {
	mu sync.Mutex

	Accounts map[string]string

	// Current is what Subscribe reports first.
	Current *identity.Identity

	SignInErr, SignUpErr, SocialErr, ResetErr, SignOutErr, SubscribeErr error

	// Block, when non-nil, is received from before every password
	// sign-in / sign-up returns.  Tests use it to observe in-flight state.
	Block chan struct{}

	SignOutCalls  int
	ResetCalls    []string
	Subscriptions int
	Unsubscribed  int
	SocialCodes   []string
	LastAuthState string

	streams []*identity.Stream
}

// New returns a Fake with the given accounts.
func New(accounts map[string]string) *Fake {
	if accounts == nil {
		accounts = map[string]string{}
	}
	return &Fake{Accounts: accounts}
}

// IdentityFor builds the identity Fake hands out for email.
func IdentityFor(email string) *identity.Identity {
	return &identity.Identity{
		UID:          "uid-" + email,
		Email:        email,
		IDToken:      "id-token-" + email,
		RefreshToken: "refresh-" + email,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func (f *Fake) SignInWithPassword(ctx context.Context, email, password string) (*identity.Identity, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	if pw, ok := f.Accounts[email]; !ok || pw != password {
		return nil, identity.ErrInvalidCredentials
	}
	f.Current = IdentityFor(email)
	return f.Current, nil
}

func (f *Fake) SignUp(ctx context.Context, email, password string) (*identity.Identity, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	if _, ok := f.Accounts[email]; ok {
		return nil, identity.ErrEmailExists
	}
	f.Accounts[email] = password
	f.Current = IdentityFor(email)
	return f.Current, nil
}

func (f *Fake) SocialAuthURL(state string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastAuthState = state
	return "https://social.example/authorize?state=" + state, nil
}

func (f *Fake) SignInWithIdP(_ context.Context, code string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SocialCodes = append(f.SocialCodes, code)
	if f.SocialErr != nil {
		return nil, f.SocialErr
	}
	f.Current = IdentityFor("social-" + code + "@example.com")
	return f.Current, nil
}

func (f *Fake) SendPasswordReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCalls = append(f.ResetCalls, email)
	return f.ResetErr
}

func (f *Fake) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignOutCalls++
	f.Current = nil
	return f.SignOutErr
}

// Subscribe publishes Current and then waits for Emit calls.
func (f *Fake) Subscribe(ctx context.Context) (identity.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.Subscriptions++
	s := identity.NewStream(ctx)
	f.streams = append(f.streams, s)
	cur := f.Current
	go func() {
		s.Publish(identity.Event{Identity: cur})
		<-s.Done()
		f.mu.Lock()
		f.Unsubscribed++
		f.mu.Unlock()
		s.Close()
	}()
	return s, nil
}

// Emit pushes id to every live subscription.
func (f *Fake) Emit(id *identity.Identity) {
	f.mu.Lock()
	streams := append([]*identity.Stream(nil), f.streams...)
	f.mu.Unlock()
	for _, s := range streams {
		s.Publish(identity.Event{Identity: id})
	}
}

// UnsubscribedCount returns how many subscriptions have ended.
func (f *Fake) UnsubscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Unsubscribed
}

// SubscriptionCount returns how many subscriptions were opened.
func (f *Fake) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Subscriptions
}

func (f *Fake) wait(ctx context.Context) {
	if f.Block == nil {
		return
	}
	select {
	case <-f.Block:
	case <-ctx.Done():
	}
}

var _ identity.Provider = (*Fake)(nil)
