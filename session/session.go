package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"

	"github.com/meridian-sec/oidcsession/oidcclient"
	"github.com/meridian-sec/oidcsession/redirect"
	"github.com/meridian-sec/oidcsession/storage"
)

// refreshWindowFactor is the fraction of the access token lifetime after
// which a refresh is due: the periodic timer fires at 90% of expires_in, and
// CheckToken treats a token older than that as about to expire.
const refreshWindowFactor = 0.9

// refreshIn returns how long after issuance a refresh becomes due.
func refreshIn(expiresIn time.Duration) time.Duration {
	return time.Duration(float64(expiresIn) * refreshWindowFactor)
}

// Session orchestrates the client-side token lifecycle of one OIDC
// authorization code session. See the package documentation for the phase
// model and the readiness contract.
//
// See Done() which must be called to release session resources.
type Session struct {
	config     *Config
	client     *http.Client
	store      *TokenStore
	redirector redirect.Redirector
	logger     hclog.Logger
	errorFn    ErrorFunc
	nowFunc    func() time.Time

	// guard deduplicates refresh attempts: the auto-login attempt, the
	// periodic timer and CheckToken can never perform two simultaneous
	// token endpoint calls.
	guard Guard

	// backgroundCtx is the context used by the session for background
	// activities: discovery, auto-login, the periodic refresh timer.
	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc

	mu             sync.Mutex
	providerConfig *oidcclient.ProviderConfiguration

	// configResolved is closed once the discovery attempt settled, whether
	// or not it produced a configuration.
	configResolved chan struct{}

	// autoLoginDone and initializationComplete each settle to true exactly
	// once per session and never revert.
	autoLoginDone          bool
	initializationComplete bool

	// redirectConsumed guards the redirect-completion exchange so it runs
	// at most once per session even if the completion path fires twice.
	redirectConsumed bool

	// readyCh is closed when both readiness flags have settled.
	readyCh chan struct{}

	refreshTimer *time.Timer
}

// New creates a Session and starts its initialization: provider discovery
// begins immediately, the auto-login attempt from the persisted refresh
// token runs as soon as discovery settles, and a pending authorization
// redirect response (if any) is consumed once configuration is available.
// Callers gate on IsReady (or WaitReady) before invoking Login.
//
// Supported options: WithLogger, WithErrorFunc, WithNow
func New(c *Config, s storage.Storage, r redirect.Redirector, opt ...Option) (*Session, error) {
	const op = "session.New"
	if c == nil {
		return nil, fmt.Errorf("%s: session config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: session config is invalid: %w", op, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: redirector is nil: %w", op, ErrNilParameter)
	}
	opts := getSessionOpts(opt...)

	client, err := oidcclient.NewHTTPClient(c.ProviderCA, c.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	store, err := NewTokenStore(s, WithNow(opts.withNowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		config:              c,
		client:              client,
		store:               store,
		redirector:          r,
		logger:              opts.withLogger,
		errorFn:             opts.withErrorFn,
		nowFunc:             opts.withNowFunc,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
		configResolved:      make(chan struct{}),
		readyCh:             make(chan struct{}),
	}

	go sess.resolveConfiguration()
	go sess.autoLogin()

	return sess, nil
}

// Done releases the session's background resources: the periodic refresh
// timer is cancelled and in-flight background work is aborted. It must be
// called for every Session created with New.
func (s *Session) Done() {
	if s == nil {
		return
	}
	s.stopRefreshTimer()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backgroundCtxCancel != nil {
		s.backgroundCtxCancel()
		s.backgroundCtxCancel = nil
	}
}

// Token returns the current access token, or "" when logged out.
func (s *Session) Token() string { return s.store.AccessToken() }

// IdToken returns the current id_token, or "" when logged out.
func (s *Session) IdToken() string { return s.store.IdToken() }

// IsLoggedIn reports whether the session holds an access token. It stays
// false until the auto-login attempt has settled, so a stored refresh token
// is given the chance to restore the login before the app treats the user
// as logged out.
func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	autoLoginDone := s.autoLoginDone
	s.mu.Unlock()
	return autoLoginDone && s.store.AccessToken() != ""
}

// IsReady reports whether both the auto-login attempt and the
// redirect-completion phase have settled. Once true it never reverts within
// a session. Login must not be called before IsReady.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoLoginDone && s.initializationComplete
}

// WaitReady blocks until the session is ready or ctx is done. When
// discovery fails the session never becomes ready and WaitReady only
// returns on ctx.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthState is a point-in-time snapshot of the externally observable session
// state, suitable for handing to a UI layer.
type AuthState struct {
	Token    string
	IdToken  string
	LoggedIn bool
	Ready    bool
}

// AuthState returns a snapshot of the current session state.
func (s *Session) AuthState() AuthState {
	return AuthState{
		Token:    s.Token(),
		IdToken:  s.IdToken(),
		LoggedIn: s.IsLoggedIn(),
		Ready:    s.IsReady(),
	}
}

// Login starts a new authorization code flow: it builds an authorization
// request with a fresh PKCE verifier and anti-CSRF state, then navigates the
// user agent to the provider's authorization endpoint. In a browser-hosted
// app, a successful Login does not return control; the page navigates away
// and the response is consumed by a future session's redirect-completion
// phase.
//
// Login fails with ErrNotReady when invoked before the session settled;
// callers must gate on IsReady.
func (s *Session) Login(ctx context.Context, extras map[string]string) error {
	const op = "Session.Login"
	pc := s.configuration()
	if pc == nil {
		return fmt.Errorf("%s: login invoked before the provider configuration resolved: %w", op, ErrNotReady)
	}
	if !s.IsReady() {
		return fmt.Errorf("%s: login invoked before initialization settled, gate on IsReady: %w", op, ErrNotReady)
	}

	state, err := NewId(WithPrefix("st"))
	if err != nil {
		return fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := NewId(WithPrefix("n"))
	if err != nil {
		return fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	req := &redirect.Request{
		State: state,
		Nonce: nonce,
	}
	if !s.config.DisablePKCE {
		req.Verifier = oauth2.GenerateVerifier()
	}
	authURL, err := oidcclient.AuthCodeURL(pc, &oidcclient.AuthCodeRequest{
		ClientID:    s.config.ClientId,
		RedirectURL: s.config.RedirectURL,
		Scopes:      s.config.Scopes,
		State:       state,
		Nonce:       nonce,
		Verifier:    req.Verifier,
		Extras:      mergeParams(s.config.AuthRequestExtras, extras),
	})
	if err != nil {
		return fmt.Errorf("%s: unable to build authorization URL: %w", op, err)
	}
	req.AuthURL = authURL

	s.logger.Debug("starting authorization code flow", "state", state)
	if err := s.redirector.Navigate(ctx, req); err != nil {
		return fmt.Errorf("%s: unable to navigate to the authorization endpoint: %w", op, err)
	}
	return nil
}

// Logout terminates the session. Local token state is cleared immediately
// and unconditionally, so the logged-out state is observable before any
// remote call resolves. When the provider advertises an end-session
// endpoint and an id_token is held, the user agent is redirected there with
// an id_token_hint and Logout returns true. Otherwise, when a revocation
// endpoint is advertised, the access token is revoked and Logout returns
// false. With neither, no remote action is taken.
func (s *Session) Logout(ctx context.Context, extras map[string]string) (bool, error) {
	const op = "Session.Logout"
	idToken := s.store.IdToken()
	accessToken := s.store.AccessToken()

	s.stopRefreshTimer()
	var errs *multierror.Error
	if err := s.store.Clear(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", op, err))
	}

	pc := s.configuration()
	if idToken == "" || pc == nil {
		return false, errs.ErrorOrNil()
	}

	switch {
	case pc.EndSessionEndpoint != "":
		endSessionURL, err := oidcclient.EndSessionURL(pc, idToken, mergeParams(s.config.EndSessionExtras, extras))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: unable to build end-session URL: %w", op, err))
			return false, errs.ErrorOrNil()
		}
		s.logger.Debug("redirecting to end-session endpoint")
		if err := s.redirector.Navigate(ctx, &redirect.Request{AuthURL: endSessionURL}); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: unable to navigate to the end-session endpoint: %w", op, err))
			return false, errs.ErrorOrNil()
		}
		return true, errs.ErrorOrNil()

	case pc.RevocationEndpoint != "":
		if accessToken != "" {
			s.logger.Debug("revoking access token")
			if err := oidcclient.Revoke(ctx, s.client, pc, s.config.ClientId, accessToken); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: unable to revoke access token: %w", op, err))
			}
		}
		return false, errs.ErrorOrNil()
	}
	return false, errs.ErrorOrNil()
}

// CheckToken refreshes the access token when it is expired or about to
// expire; forceRefresh refreshes regardless of expiry. An expired token is
// refreshed synchronously: when CheckToken returns nil the token is current.
// A token that is merely inside the refresh window is refreshed in the
// background and CheckToken returns immediately; the caller keeps using the
// soon-to-expire token until the refresh lands. A token outside the refresh
// window is a no-op.
func (s *Session) CheckToken(ctx context.Context, forceRefresh bool) error {
	const op = "Session.CheckToken"
	rec := s.store.RefreshRecord()
	if rec == nil {
		if forceRefresh {
			return fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
		}
		return nil
	}
	now := s.nowFunc()
	isExpired := rec.IssuedAt.Add(rec.ExpiresIn).Before(now)
	willExpire := rec.IssuedAt.Add(refreshIn(rec.ExpiresIn)).Before(now)

	switch {
	case forceRefresh || isExpired:
		if err := s.refresh(ctx, rec.Token); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case willExpire:
		go func() {
			if err := s.refresh(s.backgroundCtx, rec.Token); err != nil {
				s.reportError(PhaseRefreshTokenRequest, err)
			}
		}()
	}
	return nil
}

// resolveConfiguration performs the one discovery fetch for this session.
// On failure the configuration stays absent and the session never becomes
// ready: without endpoints there is no safe way to proceed, and the error
// is surfaced through the error callback instead.
func (s *Session) resolveConfiguration() {
	pc, err := oidcclient.Discover(s.backgroundCtx, s.client, s.config.Issuer)

	s.mu.Lock()
	s.providerConfig = pc
	close(s.configResolved)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("well-known configuration fetch failed", "issuer", s.config.Issuer, "error", err)
		s.reportError(PhaseFetchWellKnown, err)
		return
	}
	s.logger.Debug("provider configuration resolved", "issuer", s.config.Issuer)
	s.completeRedirect(s.backgroundCtx)
}

// autoLogin attempts one refresh from the persisted refresh token, then
// settles autoLoginDone regardless of the outcome.
func (s *Session) autoLogin() {
	defer s.settleAutoLogin()
	ctx := s.backgroundCtx

	refreshToken, err := s.store.Load(ctx)
	if err != nil {
		s.reportError(PhaseAutoLogin, err)
		return
	}
	if refreshToken == "" {
		s.logger.Debug("no persisted refresh token, skipping auto-login")
		return
	}

	select {
	case <-s.configResolved:
	case <-ctx.Done():
		return
	}
	if s.configuration() == nil {
		// discovery failed; there is no token endpoint to exchange against
		return
	}

	if err := s.refresh(ctx, refreshToken); err != nil {
		s.reportError(PhaseAutoLogin, err)
		return
	}
	s.logger.Debug("auto-login restored session from persisted refresh token")
}

// completeRedirect consumes a pending authorization redirect response at
// most once per session, then settles initializationComplete.
func (s *Session) completeRedirect(ctx context.Context) {
	defer s.settleInitialization()

	s.mu.Lock()
	if s.redirectConsumed {
		s.mu.Unlock()
		return
	}
	s.redirectConsumed = true
	s.mu.Unlock()

	completed, err := s.redirector.Complete(ctx)
	if err != nil {
		s.reportError(PhaseCompleteAuthorizationRequest, err)
		return
	}
	if completed == nil {
		s.logger.Debug("no pending authorization response")
		return
	}
	if completed.Err != nil {
		s.reportError(PhaseHandleAuthorizationResponse, completed.Err)
		return
	}
	if err := s.exchangeAuthorizationCode(ctx, completed); err != nil {
		s.reportError(PhaseHandleAuthorizationResponse, err)
		return
	}
	s.logger.Debug("authorization redirect consumed")
}

// exchangeAuthorizationCode exchanges a consumed authorization response for
// tokens, verifies the issued id_token, and feeds the result to the token
// store.
func (s *Session) exchangeAuthorizationCode(ctx context.Context, completed *redirect.Completed) error {
	const op = "Session.exchangeAuthorizationCode"
	pc := s.configuration()
	if pc == nil {
		return fmt.Errorf("%s: %w", op, ErrNoConfiguration)
	}
	if completed.Request == nil {
		return fmt.Errorf("%s: authorization response has no request context: %w", op, ErrInvalidParameter)
	}
	if completed.State != completed.Request.State {
		return fmt.Errorf("%s: response state and request state are not equal: %w", op, ErrResponseState)
	}
	tokenResp, err := oidcclient.ExchangeCode(ctx, s.client, pc, &oidcclient.ExchangeRequest{
		ClientID:    s.config.ClientId,
		RedirectURL: s.config.RedirectURL,
		Scopes:      s.config.Scopes,
		Code:        completed.Code,
		Verifier:    completed.Request.Verifier,
		Extras:      s.config.TokenRequestExtras,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tokenResp.IDToken == "" {
		return fmt.Errorf("%s: token response carries no id_token: %w", op, oidcclient.ErrMissingIdToken)
	}
	if err := pc.VerifyIdToken(ctx, s.client, s.config.ClientId, tokenResp.IDToken, completed.Request.Nonce, s.config.Audiences); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SetTokenResponse(ctx, tokenResp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.tokenUpdated()
	return nil
}

// refresh performs one refresh_token grant through the guard, so concurrent
// triggers share a single token endpoint call.
func (s *Session) refresh(ctx context.Context, refreshToken string) error {
	_, err := s.guard.Do(ctx, func() (interface{}, error) {
		// the flight runs on the session's background context: a joined
		// caller giving up must not cancel the shared exchange
		return nil, s.performRefresh(s.backgroundCtx, refreshToken)
	})
	return err
}

// performRefresh is the single-flight body of a refresh: it calls the token
// endpoint and applies the refresh policy. A 4xx response means the refresh
// token is permanently invalid, so all token state and the persisted slot
// are cleared and the user is demoted to logged out. Any other failure
// leaves the existing tokens untouched; stale tokens beat logging the user
// out over a transient blip.
func (s *Session) performRefresh(ctx context.Context, refreshToken string) error {
	const op = "Session.performRefresh"
	pc := s.configuration()
	if pc == nil {
		return fmt.Errorf("%s: %w", op, ErrNoConfiguration)
	}
	tokenResp, err := oidcclient.Refresh(ctx, s.client, pc, s.config.ClientId, refreshToken)
	if err != nil {
		if oidcclient.IsClientError(err) {
			s.logger.Warn("refresh token rejected by provider, clearing session", "error", err)
			s.stopRefreshTimer()
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				err = multierror.Append(err, clearErr)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SetTokenResponse(ctx, tokenResp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.tokenUpdated()
	return nil
}

// tokenUpdated re-evaluates the periodic refresh cycle after a token state
// change: any armed timer is replaced with one firing at 90% of the current
// access token lifetime. Nothing is armed while logged out or when the
// periodic refresh is disabled.
func (s *Session) tokenUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.config.DisableAutoRefresh {
		return
	}
	rec := s.store.RefreshRecord()
	if rec == nil {
		return
	}
	d := refreshIn(rec.ExpiresIn)
	s.refreshTimer = time.AfterFunc(d, s.onRefreshTimer)
	s.logger.Debug("refresh timer armed", "in", d.String())
}

// onRefreshTimer drives the periodic refresh. A transient failure re-arms
// the timer from the existing record so the refresh cycle is not silently
// dropped; a 4xx already cleared the record, which ends the cycle.
func (s *Session) onRefreshTimer() {
	if s.backgroundCtx.Err() != nil {
		return
	}
	rec := s.store.RefreshRecord()
	if rec == nil {
		return
	}
	if err := s.refresh(s.backgroundCtx, rec.Token); err != nil {
		s.reportError(PhaseRefreshTokenRequest, err)
		s.tokenUpdated()
	}
}

func (s *Session) stopRefreshTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}

// settleAutoLogin marks the auto-login phase settled. The flag never
// reverts.
func (s *Session) settleAutoLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoLoginDone = true
	s.signalReadyLocked()
}

// settleInitialization marks the redirect-completion phase settled. The
// flag never reverts.
func (s *Session) settleInitialization() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializationComplete = true
	s.signalReadyLocked()
}

func (s *Session) signalReadyLocked() {
	if !s.autoLoginDone || !s.initializationComplete {
		return
	}
	select {
	case <-s.readyCh:
	default:
		close(s.readyCh)
		s.logger.Debug("session ready")
	}
}

func (s *Session) configuration() *oidcclient.ProviderConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerConfig
}

func (s *Session) reportError(phase Phase, err error) {
	if err == nil {
		return
	}
	s.logger.Error("session error", "phase", string(phase), "error", err)
	if s.errorFn != nil {
		s.errorFn(phase, err)
	}
}

// mergeParams overlays extras over base without mutating either.
func mergeParams(base, extras map[string]string) map[string]string {
	if len(base) == 0 && len(extras) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extras))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extras {
		merged[k] = v
	}
	return merged
}
