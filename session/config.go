package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/meridian-sec/oidcsession/internal/strutils"
)

// Config holds the relying party configuration for a session.
type Config struct {
	// Issuer is a case-sensitive URL using the https scheme that the
	// well-known configuration is discovered from.
	Issuer string

	// ClientId is the relying party id registered with the provider.
	ClientId string

	// RedirectURL is the URL the provider redirects back to after the user
	// completes authentication.
	RedirectURL string

	// Scopes is a list of additional scopes to request of the provider. The
	// required openid scope is always requested and should not be listed.
	Scopes []string

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's aud claim.
	Audiences []string

	// ProviderCA is an optional CA cert PEM to use when sending requests to
	// the provider.
	ProviderCA string

	// RequestTimeout optionally bounds each individual http request to the
	// provider. Zero means no client-side timeout.
	RequestTimeout time.Duration

	// DisablePKCE turns off the PKCE challenge on authorization requests.
	DisablePKCE bool

	// DisableAutoRefresh stops the session from re-arming its periodic
	// refresh timer after token updates.
	DisableAutoRefresh bool

	// AuthRequestExtras are extra parameters added to every authorization
	// request URL. Extras passed to Login are merged over these.
	AuthRequestExtras map[string]string

	// TokenRequestExtras are extra parameters added to the authorization
	// code exchange.
	TokenRequestExtras map[string]string

	// EndSessionExtras are extra parameters added to the end-session
	// redirect URL. Extras passed to Logout are merged over these.
	EndSessionExtras map[string]string
}

// NewConfig composes a new session config.
//
// Supported options: WithScopes, WithAudiences, WithProviderCA,
// WithRequestTimeout, WithoutPKCE, WithoutAutoRefresh,
// WithAuthRequestExtras, WithTokenRequestExtras, WithEndSessionExtras
func NewConfig(issuer string, clientId string, redirectURL string, opt ...Option) (*Config, error) {
	const op = "session.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:             issuer,
		ClientId:           clientId,
		RedirectURL:        redirectURL,
		Scopes:             opts.withScopes,
		Audiences:          opts.withAudiences,
		ProviderCA:         opts.withProviderCA,
		RequestTimeout:     opts.withRequestTimeout,
		DisablePKCE:        opts.withoutPKCE,
		DisableAutoRefresh: opts.withoutAutoRefresh,
		AuthRequestExtras:  opts.withAuthExtras,
		TokenRequestExtras: opts.withTokenExtras,
		EndSessionExtras:   opts.withEndSessionExtras,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid session config: %w", op, err)
	}
	return c, nil
}

// Validate the session configuration. Among other validations, it verifies
// the issuer is a http/https URL, but it doesn't verify the issuer is
// discoverable via an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: session config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientId == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid: %w", op, c.Issuer, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrInvalidParameter)
	}
	return nil
}
