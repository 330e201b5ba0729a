// Package redirect abstracts the browser redirect mechanics of an
// authorization code flow: sending the user agent to the authorization
// endpoint and consuming the response the provider redirects back with.
//
// The session package only depends on the Redirector interface; the Listener
// in this package implements it for apps that complete the flow on a local
// http listener.
package redirect

import (
	"context"
	"fmt"
)

// Request carries the client half of one authorization attempt: the
// authorization URL plus the anti-CSRF state, nonce and PKCE verifier
// generated when the login was issued. Implementations of Redirector must
// hand the same Request back inside the Completed response so the code
// exchange can be correlated with its verifier.
type Request struct {
	AuthURL  string
	State    string
	Nonce    string
	Verifier string
}

// AuthError is an error response returned by the authorization endpoint.
type AuthError struct {
	// Code is the wire error code (for example "access_denied").
	Code        string
	Description string
	URI         string
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization response error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization response error %q", e.Code)
}

// Completed is a consumed authorization response. Exactly one of Code or Err
// is meaningful: Err is set when the provider answered with an error instead
// of an authorization code.
type Completed struct {
	// Request is the authorization request this response answers.
	Request *Request

	Code  string
	State string
	Err   *AuthError
}

// Redirector is the redirect mechanism a session drives. Implementations are
// the boundary between the session core and the hosting environment (local
// http listener, embedded webview, tests).
type Redirector interface {
	// HasPending reports whether an authorization response is waiting to be
	// consumed.
	HasPending(ctx context.Context) bool

	// Complete consumes the pending authorization response if one exists,
	// returning nil when there is none. The session guarantees it exchanges
	// a returned response at most once per session.
	Complete(ctx context.Context) (*Completed, error)

	// Navigate sends the user agent to req.AuthURL and remembers req so the
	// eventual response can be correlated with it.
	Navigate(ctx context.Context, req *Request) error
}
