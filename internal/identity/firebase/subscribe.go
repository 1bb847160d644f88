// internal/identity/firebase/subscribe.go
//
// Identity-change stream and ID-token refresh.
//
// Context
// -------
// Subscribe returns at once.  A producer goroutine resolves the visitor's
// current identity (loads the persisted credentials, refreshes the ID
// token when it is within RefreshSkew of expiry, saves what changed),
// publishes it, and keeps refreshing ahead of each expiry until the
// subscriber unsubscribes.  A slow token endpoint therefore shows up to the
// caller as "no event yet", never as a blocked Subscribe.
//
// Notes
// -----
//   - The ID token arrived over TLS from Google and sat in a sealed cookie,
//     so its claims are read without signature verification.  Only the
//     profile fields and exp are used, never for authorization decisions
//     beyond "is someone signed in".
//   - Concurrent refreshes of the same refresh token share one request.
//     The shared request is not cancelled when one waiter gives up, so a
//     follow-up page load joins it instead of starting over.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yanizio/meetgate/internal/identity"
	"github.com/yanizio/meetgate/internal/metrics"
)

// idTokenClaims are the Firebase ID token fields the gate reads.
type idTokenClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// identityFromToken reads profile claims out of a Firebase ID token.
func identityFromToken(idToken, refreshToken string) (*identity.Identity, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	id := &identity.Identity{
		UID:          uid,
		DisplayName:  claims.Name,
		Email:        claims.Email,
		PhotoURL:     claims.Picture,
		IDToken:      idToken,
		RefreshToken: refreshToken,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

//
// Refresh
//

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// refresh trades a refresh token for a fresh identity.  It returns early
// with ctx's error if ctx ends first; the request itself runs on.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*identity.Identity, error) {
	flight := c.sfg.DoChan(refreshToken, func() (any, error) {
		id, err := c.exchangeRefresh(context.WithoutCancel(ctx), refreshToken)
		if err != nil {
			metrics.TokenRefreshTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, err
		}
		metrics.TokenRefreshTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		return id, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*identity.Identity)
		return &cp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) exchangeRefresh(ctx context.Context, refreshToken string) (*identity.Identity, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var res tokenResponse
	endpoint := c.cfg.SecureTokenURL + "/token?key=" + url.QueryEscape(c.cfg.APIKey)
	if err := c.postForm(ctx, endpoint, form, &res); err != nil {
		return nil, err
	}
	id, err := identityFromToken(res.IDToken, res.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrProvider, err)
	}
	if id.UID == "" {
		id.UID = res.UserID
	}
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = c.now().Add(parseExpiresIn(res.ExpiresIn))
	}
	return id, nil
}

// current resolves the persisted identity, refreshing when needed.  A nil
// identity with nil error means nobody is signed in.
func (c *Client) current(ctx context.Context, p Persistence) (*identity.Identity, error) {
	if p == nil {
		return nil, nil
	}
	cr, ok := p.Load()
	if !ok {
		return nil, nil
	}

	if cr.IDToken != "" {
		id, err := identityFromToken(cr.IDToken, cr.RefreshToken)
		if err == nil && c.now().Add(RefreshSkew).Before(id.ExpiresAt) {
			return id, nil
		}
	}

	id, err := c.refresh(ctx, cr.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentity) {
			p.Clear()
			return nil, nil
		}
		return nil, err
	}
	c.persist(p, id)
	return id, nil
}

func (c *Client) persist(p Persistence, id *identity.Identity) {
	if p == nil || id == nil {
		return
	}
	if err := p.Save(Credentials{RefreshToken: id.RefreshToken, IDToken: id.IDToken}); err != nil {
		c.log.Warnw("persist refreshed credentials", "err", err)
	}
}

//
// Subscribe
//

// Subscribe implements identity.Provider.
func (c *Client) Subscribe(ctx context.Context) (identity.Subscription, error) {
	s := identity.NewStream(ctx)
	go c.watch(s, PersistenceFrom(ctx))
	return s, nil
}

func (c *Client) watch(s *identity.Stream, p Persistence) {
	defer s.Close()

	cur, err := c.current(s.Context(), p)
	if err != nil {
		if s.Context().Err() != nil {
			return
		}
		// Transient provider trouble: report "signed out" rather than
		// failing the page, the guard will send the visitor to sign in.
		c.log.Warnw("resolve current identity", "err", err)
		cur = nil
	}

	if !s.Publish(identity.Event{Identity: cur}) {
		return
	}
	for cur != nil {
		wait := cur.ExpiresAt.Sub(c.now()) - RefreshSkew
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-s.Done():
			t.Stop()
			return
		case <-t.C:
		}

		next, err := c.refresh(s.Context(), cur.RefreshToken)
		switch {
		case s.Context().Err() != nil:
			return
		case err != nil:
			c.log.Infow("background token refresh failed", "err", err)
			if errors.Is(err, identity.ErrNoIdentity) && p != nil {
				p.Clear()
			}
			next = nil
		default:
			c.persist(p, next)
		}
		cur = next
		if !s.Publish(identity.Event{Identity: cur}) {
			return
		}
	}
	<-s.Done()
}
