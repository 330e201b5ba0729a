package redirect

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListener(t *testing.T) {
	t.Parallel()
	_, err := NewListener(nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNilParameter))
}

func TestListener_Navigate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)

	var opened string
	l, err := NewListener(func(_ context.Context, url string) error {
		opened = url
		return nil
	})
	require.NoError(err)

	req := &Request{AuthURL: "https://idp.example.com/auth?state=st_1", State: "st_1"}
	require.NoError(l.Navigate(ctx, req))
	assert.Equal(req.AuthURL, opened)
	assert.False(l.HasPending(ctx))

	require.Error(l.Navigate(ctx, nil))
}

func TestListener_Callback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	openURL := func(context.Context, string) error { return nil }

	fire := func(t *testing.T, l *Listener, query url.Values) {
		t.Helper()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/callback?"+query.Encode(), nil)
		l.Handler().ServeHTTP(rec, req)
		require.Equal(t, 200, rec.Code)
		require.True(t, strings.Contains(rec.Body.String(), "close this window"))
	}

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l, err := NewListener(openURL)
		require.NoError(err)
		authReq := &Request{State: "st_1", Nonce: "n_1", Verifier: "v_1"}
		require.NoError(l.Navigate(ctx, authReq))

		fire(t, l, url.Values{"state": {"st_1"}, "code": {"c_1"}})
		require.NoError(l.Wait(ctx))
		assert.True(l.HasPending(ctx))

		completed, err := l.Complete(ctx)
		require.NoError(err)
		require.NotNil(completed)
		assert.Equal("c_1", completed.Code)
		assert.Equal("st_1", completed.State)
		assert.Same(authReq, completed.Request)
		assert.Nil(completed.Err)

		// consumed: a second Complete has nothing to return
		completed, err = l.Complete(ctx)
		require.NoError(err)
		assert.Nil(completed)
	})

	t.Run("error-response", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l, err := NewListener(openURL)
		require.NoError(err)
		require.NoError(l.Navigate(ctx, &Request{State: "st_1"}))

		fire(t, l, url.Values{"state": {"st_1"}, "error": {"access_denied"}, "error_description": {"user said no"}})
		completed, err := l.Complete(ctx)
		require.NoError(err)
		require.NotNil(completed)
		require.NotNil(completed.Err)
		assert.Equal("access_denied", completed.Err.Code)
		assert.Contains(completed.Err.Error(), "user said no")
		assert.Empty(completed.Code)
	})

	t.Run("duplicate-callback-ignored", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l, err := NewListener(openURL)
		require.NoError(err)
		require.NoError(l.Navigate(ctx, &Request{State: "st_1"}))

		fire(t, l, url.Values{"state": {"st_1"}, "code": {"first"}})
		fire(t, l, url.Values{"state": {"st_1"}, "code": {"second"}})

		completed, err := l.Complete(ctx)
		require.NoError(err)
		require.NotNil(completed)
		assert.Equal("first", completed.Code)
	})

	t.Run("callback-without-navigate-ignored", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		l, err := NewListener(openURL)
		require.NoError(err)
		fire(t, l, url.Values{"state": {"st_1"}, "code": {"c_1"}})
		completed, err := l.Complete(ctx)
		require.NoError(err)
		assert.Nil(completed)
	})
}

func TestListener_Wait(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	l, err := NewListener(func(context.Context, string) error { return nil })
	require.NoError(err)

	// no Navigate yet
	err = l.Wait(context.Background())
	require.Error(err)
	require.True(errors.Is(err, ErrNoPendingRequest))

	require.NoError(l.Navigate(context.Background(), &Request{State: "st_1"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(l.Wait(ctx), context.Canceled)
}
