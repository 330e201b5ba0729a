package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// sessionOptions is the set of available options for New.
type sessionOptions struct {
	withLogger  hclog.Logger
	withErrorFn ErrorFunc
	withNowFunc func() time.Time
}

func sessionDefaults() sessionOptions {
	return sessionOptions{
		withLogger:  hclog.NewNullLogger(),
		withNowFunc: time.Now,
	}
}

func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger for the session's background activity. The
// default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithErrorFunc provides a callback receiving the failures the session
// recovers from locally, tagged with the lifecycle Phase that produced them.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withErrorFn = fn
		}
	}
}

// WithNow provides an optional func to determine the current time, for the
// session's expiry arithmetic. Mostly useful for testing refresh policy.
func WithNow(nowFn func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			if nowFn != nil {
				v.withNowFunc = nowFn
			}
		case *tokenStoreOptions:
			if nowFn != nil {
				v.withNowFunc = nowFn
			}
		}
	}
}

// tokenStoreOptions is the set of available options for NewTokenStore.
type tokenStoreOptions struct {
	withNowFunc func() time.Time
}

func tokenStoreDefaults() tokenStoreOptions {
	return tokenStoreOptions{
		withNowFunc: time.Now,
	}
}

func getTokenStoreOpts(opt ...Option) tokenStoreOptions {
	opts := tokenStoreDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// idOptions is the set of available options for NewId.
type idOptions struct {
	withPrefix string
}

func idDefaults() idOptions {
	return idOptions{}
}

func getIdOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a generated id.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}

// configOptions is the set of available options for NewConfig.
type configOptions struct {
	withScopes           []string
	withAudiences        []string
	withProviderCA       string
	withRequestTimeout   time.Duration
	withoutPKCE          bool
	withoutAutoRefresh   bool
	withAuthExtras       map[string]string
	withTokenExtras      map[string]string
	withEndSessionExtras map[string]string
}

func configDefaults() configOptions {
	return configOptions{}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes to request beyond the
// required openid scope.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of case-sensitive strings used
// when verifying an id_token's aud claim.
func WithAudiences(audiences ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = audiences
		}
	}
}

// WithProviderCA provides an optional CA cert PEM to use when sending
// requests to the provider.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithRequestTimeout bounds each individual http request to the provider.
// The default is no client-side timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequestTimeout = d
		}
	}
}

// WithoutPKCE disables the PKCE challenge on authorization requests. Only
// for providers that reject the extension; leave PKCE on otherwise.
func WithoutPKCE() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withoutPKCE = true
		}
	}
}

// WithoutAutoRefresh disables the periodic refresh timer. CheckToken and the
// auto-login attempt still refresh on demand.
func WithoutAutoRefresh() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withoutAutoRefresh = true
		}
	}
}

// WithAuthRequestExtras provides extra parameters added to every
// authorization request URL.
func WithAuthRequestExtras(extras map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthExtras = extras
		}
	}
}

// WithTokenRequestExtras provides extra parameters added to the
// authorization code exchange.
func WithTokenRequestExtras(extras map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenExtras = extras
		}
	}
}

// WithEndSessionExtras provides extra parameters added to the end-session
// redirect URL built during Logout.
func WithEndSessionExtras(extras map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEndSessionExtras = extras
		}
	}
}
