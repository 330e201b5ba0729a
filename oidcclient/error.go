package oidcclient

import (
	"errors"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")
	ErrMissingIdToken   = errors.New("id_token is missing")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrInvalidAudience  = errors.New("invalid audience")
	ErrEndpointNotSet   = errors.New("endpoint is not set")
)

// IsClientError reports whether err carries a token endpoint response with a
// status code in the client error range (400-499). A client error from the
// refresh grant means the refresh token is permanently invalid and the user
// must re-authenticate.
func IsClientError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		return code >= 400 && code <= 499
	}
	return false
}
