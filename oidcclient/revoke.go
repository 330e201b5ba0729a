package oidcclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// Revoke invalidates token at the provider's revocation endpoint (RFC 7009).
// The provider decides whether token is an access or refresh token; per the
// RFC, revoking an already-invalid token still succeeds.
func Revoke(ctx context.Context, client *http.Client, pc *ProviderConfiguration, clientID, token string) error {
	const op = "oidcclient.Revoke"
	switch {
	case pc == nil:
		return fmt.Errorf("%s: provider configuration is nil: %w", op, ErrNilParameter)
	case pc.RevocationEndpoint == "":
		return fmt.Errorf("%s: revocation endpoint: %w", op, ErrEndpointNotSet)
	case token == "":
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: unable to create revocation request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: revocation request failed: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: revocation endpoint returned %d: %s", op, resp.StatusCode, string(body))
	}
	return nil
}
