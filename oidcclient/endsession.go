package oidcclient

import (
	"fmt"
	"net/url"
)

// EndSessionURL builds the provider's end-session redirect URL carrying the
// id_token_hint and any extra parameters (for example
// post_logout_redirect_uri). Navigating the user agent to the returned URL
// terminates the provider-side browser session.
func EndSessionURL(pc *ProviderConfiguration, idTokenHint string, extras map[string]string) (string, error) {
	const op = "oidcclient.EndSessionURL"
	switch {
	case pc == nil:
		return "", fmt.Errorf("%s: provider configuration is nil: %w", op, ErrNilParameter)
	case pc.EndSessionEndpoint == "":
		return "", fmt.Errorf("%s: end-session endpoint: %w", op, ErrEndpointNotSet)
	}
	u, err := url.Parse(pc.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: end-session endpoint is invalid: %w", op, err)
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	for k, v := range extras {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
