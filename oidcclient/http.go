package oidcclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// NewHTTPClient creates an http client which will use the optional CA
// certificate PEM if provided, otherwise it uses the installed system CA
// chain. A non-zero timeout bounds each individual request including body
// reads; zero means no client-side timeout.
func NewHTTPClient(caPEM string, timeout time.Duration) (*http.Client, error) {
	const op = "oidcclient.NewHTTPClient"
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// ClientContext returns a new Context that carries the provided HTTP client.
// This sets the same context key used by the github.com/coreos/go-oidc and
// golang.org/x/oauth2 packages, so the returned context works for those
// packages as well.
func ClientContext(ctx context.Context, client *http.Client) context.Context {
	return oidc.ClientContext(ctx, client)
}
