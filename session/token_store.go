package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-sec/oidcsession/oidcclient"
	"github.com/meridian-sec/oidcsession/storage"
)

// StorageKeyRefreshToken is the storage key the refresh token is persisted
// under.
const StorageKeyRefreshToken = "AUTH_REFRESH_TOKEN"

// RefreshRecord tracks a refresh token together with the lifetime of the
// access token that was issued alongside it. IssuedAt is the wall-clock time
// the token response was received; ExpiresIn is always > 0.
type RefreshRecord struct {
	Token     string
	IssuedAt  time.Time
	ExpiresIn time.Duration
}

// TokenStore owns the in-memory token state of one session and the
// persisted refresh token slot. It is safe for concurrent use; only the
// store mutates the persisted slot.
type TokenStore struct {
	storage storage.Storage
	nowFunc func() time.Time

	mu          sync.RWMutex
	accessToken string
	idToken     string
	refresh     *RefreshRecord
}

// NewTokenStore creates a TokenStore persisting through s.
//
// Supported options: WithNow
func NewTokenStore(s storage.Storage, opt ...Option) (*TokenStore, error) {
	const op = "session.NewTokenStore"
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	opts := getTokenStoreOpts(opt...)
	return &TokenStore{
		storage: s,
		nowFunc: opts.withNowFunc,
	}, nil
}

// SetTokenResponse atomically updates the in-memory tokens from a token
// endpoint response and persists the refresh token when one was issued.
// A response without an access token is ignored: the caller already handled
// the request-level failure, and there is nothing coherent to store.
func (ts *TokenStore) SetTokenResponse(ctx context.Context, tr *oidcclient.TokenResponse) error {
	const op = "TokenStore.SetTokenResponse"
	if tr == nil || tr.AccessToken == "" {
		return nil
	}
	ts.mu.Lock()
	ts.accessToken = tr.AccessToken
	if tr.IDToken != "" {
		ts.idToken = tr.IDToken
	}
	persist := tr.RefreshToken
	if persist != "" {
		expiresIn := tr.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = oidcclient.DefaultExpiresIn
		}
		ts.refresh = &RefreshRecord{
			Token:     persist,
			IssuedAt:  ts.nowFunc(),
			ExpiresIn: expiresIn,
		}
	}
	ts.mu.Unlock()

	if persist != "" {
		if err := ts.storage.Set(ctx, StorageKeyRefreshToken, persist); err != nil {
			return fmt.Errorf("%s: unable to persist refresh token: %w", op, err)
		}
	}
	return nil
}

// Clear removes the access, id and refresh tokens from memory and removes
// the persisted refresh token. The in-memory state is cleared first, so the
// logged-out state is observable even if storage removal fails.
func (ts *TokenStore) Clear(ctx context.Context) error {
	const op = "TokenStore.Clear"
	ts.mu.Lock()
	ts.accessToken = ""
	ts.idToken = ""
	ts.refresh = nil
	ts.mu.Unlock()

	if err := ts.storage.Remove(ctx, StorageKeyRefreshToken); err != nil {
		return fmt.Errorf("%s: unable to remove persisted refresh token: %w", op, err)
	}
	return nil
}

// Load reads the persisted refresh token. It returns "" when none was ever
// stored or it was previously cleared.
func (ts *TokenStore) Load(ctx context.Context) (string, error) {
	const op = "TokenStore.Load"
	v, ok, err := ts.storage.Get(ctx, StorageKeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%s: unable to read persisted refresh token: %w", op, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// AccessToken returns the current access token, or "" when logged out.
func (ts *TokenStore) AccessToken() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.accessToken
}

// IdToken returns the current id_token, or "" when logged out.
func (ts *TokenStore) IdToken() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.idToken
}

// RefreshRecord returns a copy of the current refresh record, or nil when no
// refresh token is held.
func (ts *TokenStore) RefreshRecord() *RefreshRecord {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.refresh == nil {
		return nil
	}
	cp := *ts.refresh
	return &cp
}
