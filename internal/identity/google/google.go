// Package google signs visitors in with their Google account and hands
// the verified Google ID token to the identity provider for exchange.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Issuer is Google's OpenID Connect issuer.
const Issuer = "https://accounts.google.com"

var errNoIDToken = errors.New("token response carried no id_token")

// Config holds the OAuth client registered with Google.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Exchanger implements firebase.SocialExchanger for Google.
type Exchanger struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// New discovers Google's signing keys and returns an Exchanger.
func New(ctx context.Context, cfg Config) (*Exchanger, error) {
	p, err := oidc.NewProvider(ctx, Issuer)
	if err != nil {
		return nil, fmt.Errorf("new oidc provider: %w", err)
	}
	return NewWithVerifier(cfg, endpoints.Google, p.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

// NewWithVerifier skips discovery.  Tests point it at a local token
// endpoint and a static key set.
func NewWithVerifier(cfg Config, ep oauth2.Endpoint, v *oidc.IDTokenVerifier) *Exchanger {
	return &Exchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			Endpoint:     ep,
		},
		verifier: v,
	}
}

// AuthURL always shows Google's account chooser.
func (e *Exchanger) AuthURL(state string) string {
	return e.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for a verified Google ID token.
func (e *Exchanger) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", errNoIDToken
	}
	if _, err := e.verifier.Verify(ctx, raw); err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	return raw, nil
}

// ProviderID is the Firebase provider identifier for Google.
func (e *Exchanger) ProviderID() string { return "google.com" }
