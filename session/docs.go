/*
session implements the client-side token lifecycle of an OIDC authorization
code (PKCE) session.

A Session owns all token state and sequences four asynchronous phases into
one consistent readiness contract:

 1. provider configuration discovery
 2. auto-login from a previously persisted refresh token
 3. consuming a pending authorization redirect response
 4. steady-state periodic and on-demand token refresh

Primary types provided by the package:

* Session: the lifecycle orchestrator. It exposes the externally observed
state (Token, IdToken, IsLoggedIn, IsReady) and the operations Login, Logout
and CheckToken. IsReady reports that both the auto-login attempt and the
redirect-completion phase have settled; Login must not be called before then.

* TokenStore: holds the current access token, id_token and RefreshRecord, and
persists the refresh token through a storage.Storage.

* Guard: deduplicates concurrent refresh attempts so the periodic timer, an
explicit CheckToken call and the auto-login attempt can never perform two
simultaneous token endpoint calls.

* Config: the relying party configuration (issuer, client id, redirect URL,
scopes, PKCE and auto-refresh toggles, per-phase extra parameters).

Failures the session recovers from locally are reported through the optional
error callback (see WithErrorFunc) tagged with the lifecycle Phase that
produced them. A 4xx rejection of the refresh token demotes the session to
logged out; transient refresh failures keep the existing tokens.
*/
package session
