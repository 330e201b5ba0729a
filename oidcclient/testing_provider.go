package oidcclient

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local TLS server that implements enough of an OIDC
// provider to test a full session lifecycle: discovery, the authorization
// endpoint, a token endpoint handling both the authorization_code and
// refresh_token grants, JWKS serving, RFC 7009 revocation, and an
// end-session endpoint. id_tokens are real ES256-signed JWTs verifiable
// against the served JWKS.
//
// The zero state answers every token request successfully with a signed JWT
// as the access token and a one hour expires_in; use the Set* methods to
// shape replies and force failures. The request counters let tests assert
// how many exchanges actually reached the wire.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks            *jose.JSONWebKeySet
	replySubject    string
	ecdsaPublicKey  string
	ecdsaPrivateKey string

	mu                   sync.Mutex
	clientID             string
	expectedAuthCode     string
	expectedAuthNonce    string
	expectedRefreshToken string
	replyAccessToken     string
	replyRefreshToken    string
	replyExpiresIn       int
	refreshGrantStatus   int
	tokenRequestDelay    time.Duration
	omitIDToken          bool
	disableEndSession    bool
	disableRevocation    bool

	tokenRequests int
	codeGrants    int
	refreshGrants int
	revocations   int

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider. The server
// is stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:              t,
		replySubject:   "alice@example.com",
		replyExpiresIn: 3600,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the test provider's base URL, which also serves as its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign
// id_tokens.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientID configures the client id embedded as the id_token audience.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetExpectedAuthCode configures the auth code returned from the auth
// endpoint and the only code the token endpoint accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce claim embedded in issued
// id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetExpectedRefreshToken makes the refresh grant reject (401) any
// refresh_token value other than token. Empty accepts any value.
func (p *TestProvider) SetExpectedRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedRefreshToken = token
}

// SetReplyAccessToken configures the access_token value for token endpoint
// replies. Empty replies with a signed JWT.
func (p *TestProvider) SetReplyAccessToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyAccessToken = token
}

// SetReplyRefreshToken configures the refresh_token value included in token
// endpoint replies. Empty omits the field, simulating a provider that does
// not rotate (or issue) refresh tokens.
func (p *TestProvider) SetReplyRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyRefreshToken = token
}

// SetReplyExpiresIn configures the expires_in seconds for token endpoint
// replies. Zero omits the field.
func (p *TestProvider) SetReplyExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiresIn = seconds
}

// SetRefreshGrantError makes the refresh grant fail with the given http
// status. Zero restores successful replies.
func (p *TestProvider) SetRefreshGrantError(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshGrantStatus = status
}

// SetTokenRequestDelay delays every token endpoint reply by d, letting tests
// overlap concurrent exchanges deliberately.
func (p *TestProvider) SetTokenRequestDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRequestDelay = d
}

// OmitIDTokens forces token endpoint replies without an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableEndSession removes the end_session_endpoint from the discovery
// document.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// DisableRevocation removes the revocation_endpoint from the discovery
// document.
func (p *TestProvider) DisableRevocation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableRevocation = true
}

// TokenRequestCount returns how many requests the token endpoint has served,
// any grant type.
func (p *TestProvider) TokenRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// CodeGrantCount returns how many authorization_code grants were served.
func (p *TestProvider) CodeGrantCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codeGrants
}

// RefreshGrantCount returns how many refresh_token grants were served.
func (p *TestProvider) RefreshGrantCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshGrants
}

// RevocationCount returns how many revocation requests were served.
func (p *TestProvider) RevocationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revocations
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	return json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)
	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

// signIDToken mints an id_token bound to the configured client id and nonce.
// Callers must hold p.mu.
func (p *TestProvider) signIDToken() string {
	claims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(time.Now().Add(1 * time.Minute)),
		Audience:  jwt.Audience{p.clientID},
	}
	privateClaims := map[string]interface{}{}
	if p.expectedAuthNonce != "" {
		privateClaims["nonce"] = p.expectedAuthNonce
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, claims, privateClaims)
}

// writeTokenReply answers a successful token endpoint exchange. Callers must
// hold p.mu.
func (p *TestProvider) writeTokenReply(w http.ResponseWriter) error {
	idToken := p.signIDToken()
	accessToken := p.replyAccessToken
	if accessToken == "" {
		accessToken = idToken
	}
	reply := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		IDToken      string `json:"id_token,omitempty"`
		RefreshToken string `json:"refresh_token,omitempty"`
		ExpiresIn    int    `json:"expires_in,omitempty"`
	}{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		IDToken:      idToken,
		RefreshToken: p.replyRefreshToken,
		ExpiresIn:    p.replyExpiresIn,
	}
	if p.omitIDToken {
		reply.IDToken = ""
	}
	return p.writeJSON(w, &reply)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.t.Helper()

	p.mu.Lock()
	delay := p.tokenRequestDelay
	p.mu.Unlock()
	if req.URL.Path == "/token" && delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer             string `json:"issuer"`
			AuthEndpoint       string `json:"authorization_endpoint"`
			TokenEndpoint      string `json:"token_endpoint"`
			JWKSURI            string `json:"jwks_uri"`
			EndSessionEndpoint string `json:"end_session_endpoint,omitempty"`
			RevocationEndpoint string `json:"revocation_endpoint,omitempty"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/auth",
			TokenEndpoint:      p.Addr() + "/token",
			JWKSURI:            p.Addr() + "/certs",
			EndSessionEndpoint: p.Addr() + "/endsession",
			RevocationEndpoint: p.Addr() + "/revoke",
		}
		if p.disableEndSession {
			reply.EndSessionEndpoint = ""
		}
		if p.disableRevocation {
			reply.RevocationEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}
		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++
		switch req.FormValue("grant_type") {
		case "authorization_code":
			p.codeGrants++
			if req.FormValue("code") != p.expectedAuthCode {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
				return
			}
			_ = p.writeTokenReply(w)
		case "refresh_token":
			p.refreshGrants++
			if p.refreshGrantStatus != 0 {
				_ = p.writeTokenErrorResponse(w, p.refreshGrantStatus, "invalid_grant", "refresh token is not valid")
				return
			}
			if p.expectedRefreshToken != "" && req.FormValue("refresh_token") != p.expectedRefreshToken {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh token")
				return
			}
			_ = p.writeTokenReply(w)
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
		}

	case "/revoke":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if req.FormValue("token") == "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing token")
			return
		}
		p.revocations++
		w.WriteHeader(http.StatusOK)

	case "/endsession":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response.
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key: pub,
			},
		},
	}
}
