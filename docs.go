// oidcsession provides a collection of related packages which implement the
// client-side lifecycle of an OIDC authorization code (PKCE) session: provider
// discovery, login redirects, redirect completion, token storage with
// proactive refresh, and session termination.
//
// The core lives in the session package; the oidcclient, redirect and storage
// packages hold the external collaborators it composes.
//
// See README.md
package oidcsession
