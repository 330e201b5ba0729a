package oidcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/meridian-sec/oidcsession/internal/strutils"
)

// DefaultExpiresIn is the access token lifetime assumed when the token
// endpoint response carries no expires_in value.
const DefaultExpiresIn = time.Hour

// TokenResponse holds the material returned by one token endpoint exchange.
// IDToken and RefreshToken are empty when the response omitted them.
type TokenResponse struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string

	// ExpiresIn is the provider-reported access token lifetime, or
	// DefaultExpiresIn when the provider omitted expires_in. Always > 0.
	ExpiresIn time.Duration
}

// AuthCodeRequest carries the parameters for building an authorization
// endpoint URL which starts an authorization code flow.
type AuthCodeRequest struct {
	ClientID    string
	RedirectURL string
	Scopes      []string

	// State is the anti-CSRF value round-tripped through the provider. It
	// cannot equal Nonce.
	State string

	// Nonce binds the issued id_token to this request.
	Nonce string

	// Verifier is the PKCE code_verifier; its S256 challenge is embedded in
	// the URL. Empty disables PKCE.
	Verifier string

	Extras map[string]string
}

// AuthCodeURL builds the URL that kicks off the authorization code flow with
// the provider. The openid scope is always requested.
func AuthCodeURL(pc *ProviderConfiguration, r *AuthCodeRequest) (string, error) {
	const op = "oidcclient.AuthCodeURL"
	switch {
	case pc == nil:
		return "", fmt.Errorf("%s: provider configuration is nil: %w", op, ErrNilParameter)
	case r == nil:
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.State == "":
		return "", fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	case r.State == r.Nonce:
		return "", fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	oauth2Config := oauth2.Config{
		ClientID:    r.ClientID,
		RedirectURL: r.RedirectURL,
		Endpoint:    pc.Endpoint(),
		Scopes:      requestScopes(r.Scopes),
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(r.Extras)+2)
	if r.Nonce != "" {
		opts = append(opts, oidc.Nonce(r.Nonce))
	}
	if r.Verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(r.Verifier))
	}
	for k, v := range r.Extras {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return oauth2Config.AuthCodeURL(r.State, opts...), nil
}

// ExchangeRequest carries the parameters for exchanging an authorization code
// at the token endpoint.
type ExchangeRequest struct {
	ClientID    string
	RedirectURL string
	Scopes      []string
	Code        string

	// Verifier is the PKCE code_verifier generated for the matching
	// authorization request. Empty when PKCE was disabled.
	Verifier string

	Extras map[string]string
}

// ExchangeCode exchanges the authorization code for tokens at the provider's
// token endpoint.
func ExchangeCode(ctx context.Context, client *http.Client, pc *ProviderConfiguration, r *ExchangeRequest) (*TokenResponse, error) {
	const op = "oidcclient.ExchangeCode"
	switch {
	case pc == nil:
		return nil, fmt.Errorf("%s: provider configuration is nil: %w", op, ErrNilParameter)
	case r == nil:
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.Code == "":
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if client != nil {
		ctx = ClientContext(ctx, client)
	}
	oauth2Config := oauth2.Config{
		ClientID:    r.ClientID,
		RedirectURL: r.RedirectURL,
		Endpoint:    pc.Endpoint(),
		Scopes:      requestScopes(r.Scopes),
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(r.Extras)+1)
	if r.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(r.Verifier))
	}
	for k, v := range r.Extras {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	oauth2Token, err := oauth2Config.Exchange(ctx, r.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}
	return newTokenResponse(oauth2Token), nil
}

// Refresh exchanges refreshToken for a new set of tokens using the
// refresh_token grant. When the provider rotates refresh tokens the response
// carries the replacement in TokenResponse.RefreshToken.
//
// Use IsClientError on a returned error to detect a 4xx rejection, which
// means the refresh token is no longer usable.
func Refresh(ctx context.Context, client *http.Client, pc *ProviderConfiguration, clientID, refreshToken string) (*TokenResponse, error) {
	const op = "oidcclient.Refresh"
	switch {
	case pc == nil:
		return nil, fmt.Errorf("%s: provider configuration is nil: %w", op, ErrNilParameter)
	case refreshToken == "":
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	if client != nil {
		ctx = ClientContext(ctx, client)
	}
	oauth2Config := oauth2.Config{
		ClientID: clientID,
		Endpoint: pc.Endpoint(),
	}
	src := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	oauth2Token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: refresh token request failed: %w", op, err)
	}
	return newTokenResponse(oauth2Token), nil
}

// requestScopes prepends the required openid scope and drops duplicates, so
// a caller listing openid explicitly doesn't request it twice.
func requestScopes(scopes []string) []string {
	return strutils.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, scopes...), false)
}

// newTokenResponse converts an oauth2 token, carrying the id_token and
// expires_in values from the wire response when present.
func newTokenResponse(t *oauth2.Token) *TokenResponse {
	tr := &TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    DefaultExpiresIn,
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		tr.IDToken = idToken
	}
	switch v := t.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			tr.ExpiresIn = time.Duration(v) * time.Second
		}
	case json.Number:
		if sec, err := v.Int64(); err == nil && sec > 0 {
			tr.ExpiresIn = time.Duration(sec) * time.Second
		}
	}
	return tr
}
