// internal/auth/context.go
//
// Request-context helpers for the Session User.
//
// Usage
// -----
//     // The route guard attaches the user before rendering a page.
//     ctx = auth.WithUser(ctx, u)
//
//     // Page handlers read it back.
//     u := auth.UserFrom(ctx)   // nil when the page is public
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package auth

import (
	"context"

	"github.com/yanizio/meetgate/internal/user"
)

// userKey is unexported to avoid context-key collisions.
type userKey struct{}

// WithUser returns a new context carrying u.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom extracts the user from ctx.  It returns nil if none is set.
func UserFrom(ctx context.Context) *user.User {
	u, _ := ctx.Value(userKey{}).(*user.User)
	return u
}
