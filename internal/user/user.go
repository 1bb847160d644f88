// internal/user/user.go
//
// Session User model.
//
// Context
// -------
// A User is the in-memory projection of the identity the provider reports
// for the current visitor.  It is built on sign-in, sign-up, social sign-in,
// and every identity-change event, and it is dropped on sign-out.  Nothing
// here is ever written to a cookie or a database.
//
// Notes
// -----
//   - Name, Email, and ImgURL are nil when the provider has no value.
//   - Token is the provider-issued ID token.  Treat it as opaque.
package user

import "github.com/yanizio/meetgate/internal/identity"

// User is the signed-in visitor as seen by the gate.
type User struct {
	UID    string
	Name   *string
	Email  *string
	Token  string
	ImgURL *string
}

// FromIdentity projects a provider identity into a User.  A nil identity
// yields a nil User.
func FromIdentity(id *identity.Identity) *User {
	if id == nil {
		return nil
	}
	return &User{
		UID:    id.UID,
		Name:   optional(id.DisplayName),
		Email:  optional(id.Email),
		Token:  id.IDToken,
		ImgURL: optional(id.PhotoURL),
	}
}

// HasEmail reports whether u is present and carries an email address.  The
// route guard treats this as "authenticated".
func (u *User) HasEmail() bool {
	return u != nil && u.Email != nil && *u.Email != ""
}

// EmailOrEmpty returns the email or "".
func (u *User) EmailOrEmpty() string { return deref(u, func(u *User) *string { return u.Email }) }

// NameOrEmpty returns the display name or "".
func (u *User) NameOrEmpty() string { return deref(u, func(u *User) *string { return u.Name }) }

// ImgURLOrEmpty returns the avatar URL or "".
func (u *User) ImgURLOrEmpty() string { return deref(u, func(u *User) *string { return u.ImgURL }) }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(u *User, field func(*User) *string) string {
	if u == nil {
		return ""
	}
	if p := field(u); p != nil {
		return *p
	}
	return ""
}
