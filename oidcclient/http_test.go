package oidcclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("no-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewHTTPClient("", 5*time.Second)
		require.NoError(err)
		require.NotNil(client)
		assert.Equal(5*time.Second, client.Timeout)
	})

	t.Run("invalid-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewHTTPClient("not a pem block", 0)
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidCACert)
	})

	t.Run("provider-ca-is-trusted", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		client, err := NewHTTPClient(tp.CACert(), 5*time.Second)
		require.NoError(err)

		// the test provider's self-signed cert is only valid with its CA
		_, err = Discover(context.Background(), client, tp.Addr())
		require.NoError(err)

		systemClient, err := NewHTTPClient("", 5*time.Second)
		require.NoError(err)
		_, err = Discover(context.Background(), systemClient, tp.Addr())
		require.Error(err)
	})
}
