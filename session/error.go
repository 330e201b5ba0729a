package session

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrIdGeneratorFailed = errors.New("id generation failed")
	ErrNotReady          = errors.New("session is not ready")
	ErrNoConfiguration   = errors.New("provider configuration is not resolved")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrResponseState     = errors.New("authorization response state is invalid")
)

// Phase identifies which part of the session lifecycle produced an error
// reported through the error callback.
type Phase string

const (
	// PhaseAutoLogin: the startup refresh attempt from the persisted refresh
	// token failed.
	PhaseAutoLogin Phase = "AUTO_LOGIN"

	// PhaseRefreshTokenRequest: a periodic or on-demand refresh failed.
	PhaseRefreshTokenRequest Phase = "REFRESH_TOKEN_REQUEST"

	// PhaseFetchWellKnown: discovery failed. The session will never become
	// ready; without endpoints there is no safe way to proceed.
	PhaseFetchWellKnown Phase = "FETCH_WELL_KNOWN"

	// PhaseCompleteAuthorizationRequest: the redirect-completion plumbing
	// failed before a response could be read.
	PhaseCompleteAuthorizationRequest Phase = "COMPLETE_AUTHORIZATION_REQUEST"

	// PhaseHandleAuthorizationResponse: the provider returned an error
	// response, or the code exchange for a successful response failed.
	PhaseHandleAuthorizationResponse Phase = "HANDLE_AUTHORIZATION_RESPONSE"
)

// ErrorFunc receives failures the session recovers from locally. It is
// invoked from the session's background goroutines and must not block.
type ErrorFunc func(phase Phase, err error)
