package oidcclient

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAuthCodeURL(t *testing.T) {
	t.Parallel()
	pc := &ProviderConfiguration{
		Issuer:                "https://accounts.example.com",
		AuthorizationEndpoint: "https://accounts.example.com/auth",
		TokenEndpoint:         "https://accounts.example.com/token",
	}

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		verifier := oauth2.GenerateVerifier()
		rawURL, err := AuthCodeURL(pc, &AuthCodeRequest{
			ClientID:    "client-1",
			RedirectURL: "http://localhost:9876/callback",
			Scopes:      []string{"profile"},
			State:       "state-1",
			Nonce:       "nonce-1",
			Verifier:    verifier,
			Extras:      map[string]string{"prompt": "consent"},
		})
		require.NoError(err)

		u, err := url.Parse(rawURL)
		require.NoError(err)
		q := u.Query()
		assert.Equal("https", u.Scheme)
		assert.Equal("/auth", u.Path)
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("client-1", q.Get("client_id"))
		assert.Equal("http://localhost:9876/callback", q.Get("redirect_uri"))
		assert.Equal("openid profile", q.Get("scope"))
		assert.Equal("state-1", q.Get("state"))
		assert.Equal("nonce-1", q.Get("nonce"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.NotEmpty(q.Get("code_challenge"))
		assert.Equal("consent", q.Get("prompt"))
	})

	t.Run("without-pkce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rawURL, err := AuthCodeURL(pc, &AuthCodeRequest{
			ClientID: "client-1",
			State:    "state-1",
		})
		require.NoError(err)
		u, err := url.Parse(rawURL)
		require.NoError(err)
		assert.Empty(u.Query().Get("code_challenge"))
	})

	tests := []struct {
		name    string
		pc      *ProviderConfiguration
		r       *AuthCodeRequest
		wantErr error
	}{
		{
			name:    "nil-configuration",
			r:       &AuthCodeRequest{State: "state-1"},
			wantErr: ErrNilParameter,
		},
		{
			name:    "nil-request",
			pc:      pc,
			wantErr: ErrNilParameter,
		},
		{
			name:    "empty-state",
			pc:      pc,
			r:       &AuthCodeRequest{},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "state-equals-nonce",
			pc:      pc,
			r:       &AuthCodeRequest{State: "same", Nonce: "same"},
			wantErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			_, err := AuthCodeURL(tt.pc, tt.r)
			require.Error(err)
			assert.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientID("test-client")
		tp.SetExpectedAuthCode("code-1")
		tp.SetReplyAccessToken("access-1")
		tp.SetReplyRefreshToken("refresh-1")
		tp.SetReplyExpiresIn(120)
		client := testProviderClient(t, tp)

		pc, err := Discover(ctx, client, tp.Addr())
		require.NoError(err)

		tokenResp, err := ExchangeCode(ctx, client, pc, &ExchangeRequest{
			ClientID:    "test-client",
			RedirectURL: "http://localhost:9876/callback",
			Code:        "code-1",
			Verifier:    oauth2.GenerateVerifier(),
		})
		require.NoError(err)
		assert.Equal("access-1", tokenResp.AccessToken)
		assert.Equal("refresh-1", tokenResp.RefreshToken)
		assert.NotEmpty(tokenResp.IDToken)
		assert.Equal(2*time.Minute, tokenResp.ExpiresIn)
		assert.Equal(1, tp.CodeGrantCount())
	})

	t.Run("rejected-code-is-a-client-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("code-1")
		client := testProviderClient(t, tp)

		pc, err := Discover(ctx, client, tp.Addr())
		require.NoError(err)

		_, err = ExchangeCode(ctx, client, pc, &ExchangeRequest{
			ClientID: "test-client",
			Code:     "some-other-code",
		})
		require.Error(err)
		assert.True(IsClientError(err))
	})

	t.Run("validation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := ExchangeCode(ctx, nil, nil, &ExchangeRequest{Code: "code-1"})
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)

		_, err = ExchangeCode(ctx, nil, &ProviderConfiguration{}, nil)
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)

		_, err = ExchangeCode(ctx, nil, &ProviderConfiguration{}, &ExchangeRequest{})
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid-with-rotation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientID("test-client")
		tp.SetExpectedRefreshToken("refresh-1")
		tp.SetReplyAccessToken("access-2")
		tp.SetReplyRefreshToken("refresh-2")
		client := testProviderClient(t, tp)

		pc, err := Discover(ctx, client, tp.Addr())
		require.NoError(err)

		tokenResp, err := Refresh(ctx, client, pc, "test-client", "refresh-1")
		require.NoError(err)
		assert.Equal("access-2", tokenResp.AccessToken)
		assert.Equal("refresh-2", tokenResp.RefreshToken)
		assert.Equal(1, tp.RefreshGrantCount())
	})

	t.Run("rejected-token-is-a-client-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetRefreshGrantError(401)
		client := testProviderClient(t, tp)

		pc, err := Discover(ctx, client, tp.Addr())
		require.NoError(err)

		_, err = Refresh(ctx, client, pc, "test-client", "refresh-1")
		require.Error(err)
		assert.True(IsClientError(err))
	})

	t.Run("outage-is-not-a-client-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetRefreshGrantError(503)
		client := testProviderClient(t, tp)

		pc, err := Discover(ctx, client, tp.Addr())
		require.NoError(err)

		_, err = Refresh(ctx, client, pc, "test-client", "refresh-1")
		require.Error(err)
		assert.False(IsClientError(err))
	})

	t.Run("validation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := Refresh(ctx, nil, nil, "test-client", "refresh-1")
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)

		_, err = Refresh(ctx, nil, &ProviderConfiguration{}, "test-client", "")
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestNewTokenResponse_ExpiresIn(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	// a provider omitting expires_in gets the default lifetime
	tr := newTokenResponse(&oauth2.Token{AccessToken: "access-1"})
	assert.Equal(DefaultExpiresIn, tr.ExpiresIn)

	withExtra := (&oauth2.Token{AccessToken: "access-1"}).WithExtra(map[string]interface{}{
		"expires_in": float64(90),
		"id_token":   "id-1",
	})
	tr = newTokenResponse(withExtra)
	assert.Equal(90*time.Second, tr.ExpiresIn)
	assert.Equal("id-1", tr.IDToken)
}
