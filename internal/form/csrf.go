// internal/form/csrf.go
//
// Visitor-bound CSRF tokens.
//
// Context
//   Every rendered form embeds a hidden `csrf_token`.  POST handlers verify
//   it before touching the identity provider.  A token only validates for
//   the browser it was issued to: the first form render drops a random
//   visitor id into the HttpOnly cookie `meeting-organizer-csrf`, and the
//   token is
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, visitor+nonce+unixMicro) )
//
//   •  visitor – the cookie value, 16 random bytes base64url-encoded.
//   •  nonce – 16 random bytes.
//   •  unixMicro – issue time, 8 bytes, big-endian.
//   •  HMAC – keyed with session.csrf_key from configuration.
//
//   A token fetched by someone else carries their visitor id, so it fails
//   against the victim's cookie.  Nothing is stored server-side.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"time"
)

// FieldName is the hidden input carrying the token.
const FieldName = "csrf_token"

// CookieName holds the visitor id tokens are bound to.
const CookieName = "meeting-organizer-csrf"

const (
	nonceLen   = 16
	visitorLen = 16
	tokenBytes = nonceLen + 8 + sha256.Size

	// MaxAge bounds how long a rendered form stays submittable.
	MaxAge = 2 * time.Hour
)

// CSRF issues and verifies tokens.  Safe for concurrent use.
type CSRF struct {
	secret []byte
	now    func() time.Time
}

// NewCSRF keys tokens with secret, which must be at least 32 bytes.
func NewCSRF(secret []byte) (*CSRF, error) {
	if len(secret) < 32 {
		return nil, errors.New("csrf secret must be at least 32 bytes")
	}
	return &CSRF{secret: append([]byte(nil), secret...), now: time.Now}, nil
}

// Issue returns a token for the visitor behind r, setting the visitor
// cookie on w first when the request has none.  Call once per form render,
// before the response header is written.
func (c *CSRF) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	visitor, ok := visitorFrom(r)
	if !ok {
		raw := make([]byte, visitorLen)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		visitor = base64.RawURLEncoding.EncodeToString(raw)
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    visitor,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c.Token(visitor)
}

// Check verifies tok against the visitor cookie on r.
func (c *CSRF) Check(r *http.Request, tok string) bool {
	visitor, ok := visitorFrom(r)
	return ok && c.Verify(visitor, tok)
}

// Token creates a token bound to visitor.
func (c *CSRF) Token(visitor string) (string, error) {
	buf := make([]byte, nonceLen+8, tokenBytes)
	if _, err := rand.Read(buf[:nonceLen]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[nonceLen:], uint64(c.now().UnixMicro()))
	buf = append(buf, c.sign(visitor, buf)...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok was issued to visitor and is inside the
// MaxAge window.
func (c *CSRF) Verify(visitor, tok string) bool {
	if visitor == "" {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}
	body, sig := raw[:nonceLen+8], raw[nonceLen+8:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(body[nonceLen:])))
	age := c.now().Sub(issued)
	if age > MaxAge || age < -time.Minute {
		return false
	}
	return hmac.Equal(sig, c.sign(visitor, body))
}

func (c *CSRF) sign(visitor string, body []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(visitor))
	mac.Write(body)
	return mac.Sum(nil)
}

// visitorFrom returns a well-formed visitor id from r's cookie.
func visitorFrom(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(ck.Value)
	if err != nil || len(raw) != visitorLen {
		return "", false
	}
	return ck.Value, true
}
