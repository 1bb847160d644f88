// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` right after it unmarshals the merged Koanf
// tree.  Any failure aborts startup, so the binary never runs with partial
// or malformed configuration.
//
// Beyond the built-in tags, one cross-field rule lives here: the cookie key
// must decode to the 32 bytes the credential sealer needs.

package config

import (
	"encoding/base64"
	"fmt"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	key, err := c.CookieKeyBytes()
	if err != nil {
		return err
	}
	if len(key) != 32 {
		return fmt.Errorf("session.cookie_key must decode to 32 bytes, got %d", len(key))
	}
	return nil
}

// CookieKeyBytes decodes Session.CookieKey.
func (c *Config) CookieKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.Session.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("session.cookie_key: %w", err)
	}
	return key, nil
}
