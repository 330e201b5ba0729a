package oidcclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/meridian-sec/oidcsession/internal/strutils"
)

// ProviderConfiguration is the immutable provider metadata resolved from the
// issuer's well-known configuration document. EndSessionEndpoint and
// RevocationEndpoint are empty when the provider doesn't advertise them.
type ProviderConfiguration struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	EndSessionEndpoint    string
	RevocationEndpoint    string

	// provider retains the go-oidc provider so id_tokens can be verified
	// against the issuer's published JWKS.
	provider *oidc.Provider
}

// Discover fetches the issuer's well-known configuration document and
// resolves it into a ProviderConfiguration. It makes one http request to the
// issuer; the caller decides whether and when to retry.
func Discover(ctx context.Context, client *http.Client, issuer string) (*ProviderConfiguration, error) {
	const op = "oidcclient.Discover"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if client != nil {
		ctx = ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to fetch well-known configuration: %w", op, err)
	}
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode provider metadata: %w", op, err)
	}
	endpoint := provider.Endpoint()
	return &ProviderConfiguration{
		Issuer:                issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		EndSessionEndpoint:    claims.EndSessionEndpoint,
		RevocationEndpoint:    claims.RevocationEndpoint,
		provider:              provider,
	}, nil
}

// supportedSigningAlgs is the set of asymmetric id_token signing algorithms
// accepted during verification.
var supportedSigningAlgs = []string{
	oidc.RS256, oidc.RS384, oidc.RS512,
	oidc.ES256, oidc.ES384, oidc.ES512,
	oidc.PS256, oidc.PS384, oidc.PS512,
}

// Endpoint returns the provider's oauth2 endpoint pair.
func (pc *ProviderConfiguration) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  pc.AuthorizationEndpoint,
		TokenURL: pc.TokenEndpoint,
	}
}

// VerifyIdToken verifies the inbound id_token: it checks the provider's
// signature, the nonce, and, when audiences are given, that the token's aud
// claim contains at least one of them.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (pc *ProviderConfiguration) VerifyIdToken(ctx context.Context, client *http.Client, clientID, rawIdToken, nonce string, audiences []string) error {
	const op = "ProviderConfiguration.VerifyIdToken"
	if pc.provider == nil {
		return fmt.Errorf("%s: configuration was not produced by Discover: %w", op, ErrNilParameter)
	}
	if rawIdToken == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if client != nil {
		ctx = ClientContext(ctx, client)
	}
	verifier := pc.provider.Verifier(&oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: supportedSigningAlgs,
	})
	idToken, err := verifier.Verify(ctx, rawIdToken)
	if err != nil {
		return fmt.Errorf("%s: invalid id_token signature: %w", op, err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	if len(audiences) > 0 {
		found := false
		for _, a := range audiences {
			if strutils.StrListContains(idToken.Audience, a) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}
	return nil
}
