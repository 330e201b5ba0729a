package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var (
	ErrNilParameter     = errors.New("nil parameter")
	ErrNoPendingRequest = errors.New("no pending authorization request")
)

// Listener is a Redirector for apps that run a local http listener for the
// provider's redirect: Navigate opens the authorization URL via the supplied
// openURL func, Handler accepts the provider's redirect back, and Complete
// consumes the recorded response. It represents one authorization attempt at
// a time; a new Navigate supersedes any unconsumed prior attempt.
type Listener struct {
	openURL func(ctx context.Context, url string) error

	mu        sync.Mutex
	pending   *Request
	completed *Completed
	doneCh    chan struct{}
}

// ensure that Listener implements the Redirector interface
var _ Redirector = (*Listener)(nil)

// NewListener creates a Listener. openURL is invoked by Navigate with the
// authorization URL; typically it shells out to the platform browser.
func NewListener(openURL func(ctx context.Context, url string) error) (*Listener, error) {
	const op = "redirect.NewListener"
	if openURL == nil {
		return nil, fmt.Errorf("%s: openURL func is nil: %w", op, ErrNilParameter)
	}
	return &Listener{openURL: openURL}, nil
}

// Navigate implements Redirector.Navigate.
func (l *Listener) Navigate(ctx context.Context, req *Request) error {
	const op = "Listener.Navigate"
	if req == nil {
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	l.mu.Lock()
	l.pending = req
	l.completed = nil
	l.doneCh = make(chan struct{})
	l.mu.Unlock()
	if err := l.openURL(ctx, req.AuthURL); err != nil {
		return fmt.Errorf("%s: unable to open authorization URL: %w", op, err)
	}
	return nil
}

// Handler returns the http handler to mount on the redirect URL's path. Only
// the first callback for an attempt is recorded; duplicate deliveries (a
// reloaded tab, a scanner re-requesting the URL) are answered but ignored.
func (l *Listener) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		l.mu.Lock()
		defer l.mu.Unlock()

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>You can close this window.</body></html>"))

		if l.pending == nil || l.completed != nil {
			return
		}

		// FormValue prioritizes body values, if found
		completed := &Completed{
			Request: l.pending,
			State:   req.FormValue("state"),
		}
		if errCode := req.FormValue("error"); errCode != "" {
			completed.Err = &AuthError{
				Code:        errCode,
				Description: req.FormValue("error_description"),
				URI:         req.FormValue("error_uri"),
			}
		} else {
			completed.Code = req.FormValue("code")
		}
		l.completed = completed
		close(l.doneCh)
	}
}

// Wait blocks until the provider has redirected back for the current attempt
// or ctx is done.
func (l *Listener) Wait(ctx context.Context) error {
	const op = "Listener.Wait"
	l.mu.Lock()
	doneCh := l.doneCh
	l.mu.Unlock()
	if doneCh == nil {
		return fmt.Errorf("%s: %w", op, ErrNoPendingRequest)
	}
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasPending implements Redirector.HasPending.
func (l *Listener) HasPending(_ context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed != nil
}

// Complete implements Redirector.Complete. The recorded response is consumed:
// a second call returns nil until another attempt completes.
func (l *Listener) Complete(_ context.Context) (*Completed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	completed := l.completed
	l.completed = nil
	l.pending = nil
	return completed, nil
}
