// internal/identity/provider.go
//
// Identity provider contract.
//
// Context
// -------
// Credential checks, token issuance, and token refresh all live in the
// remote identity service.  The gate only talks to it through Provider,
// so the Session Mirror never knows which service sits behind it.  The
// Firebase client under identity/firebase is the production binding;
// identity/identitytest carries an in-memory fake for tests.
//
// Notes
// -----
//   - Identity-change notifications are a cancellable stream, not a
//     callback.  Callers must Unsubscribe when they are done.
//   - Sentinel errors below are what callers branch on.  Bindings wrap
//     them with %w so errors.Is keeps working.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too weak")
	ErrTooManyAttempts    = errors.New("too many attempts, try later")
	ErrUserDisabled       = errors.New("account disabled")
	ErrNoIdentity         = errors.New("no signed-in identity")
	ErrSocialUnavailable  = errors.New("social sign-in not configured")
	ErrProvider           = errors.New("identity provider failure")
)

// Identity is what the provider knows about an authenticated account.
// Empty strings mean "not set".
type Identity struct {
	UID          string
	DisplayName  string
	Email        string
	PhotoURL     string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Event is one entry on the identity-change stream.  A nil Identity means
// the provider no longer holds a signed-in account.
type Event struct {
	Identity *Identity
}

// Subscription is the handle returned by Provider.Subscribe.
type Subscription interface {
	// Events delivers identity changes.  The channel is closed once the
	// subscription ends.
	Events() <-chan Event
	// Unsubscribe stops delivery.  Safe to call more than once.
	Unsubscribe()
}

// Provider is the client side of an external identity service.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*Identity, error)

	// SocialAuthURL returns the URL that starts the social sign-in flow.
	SocialAuthURL(state string) (string, error)
	// SignInWithIdP completes the social flow with the authorization code
	// the social provider redirected back with.
	SignInWithIdP(ctx context.Context, code string) (*Identity, error)

	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	// Subscribe starts the identity-change stream.  The first event carries
	// the identity the provider currently holds (possibly nil).
	Subscribe(ctx context.Context) (Subscription, error)
}
