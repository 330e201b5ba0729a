/*
oidcclient holds the thin request builders a session uses to talk to its
provider: well-known configuration discovery, the token endpoint (both the
authorization code and refresh_token grants), RFC 7009 token revocation, and
end-session URL construction.

Nothing in this package owns token state or lifecycle policy; that belongs to
the session package. Everything here is a stateless call taking an explicit
*ProviderConfiguration plus the request parameters.

The package also provides a TestProvider: a local TLS server implementing
enough of an OIDC provider (discovery, auth, token, revocation and
end-session endpoints, JWKS with real ES256-signed id_tokens) to test a full
session lifecycle without a live IdP.
*/
package oidcclient
