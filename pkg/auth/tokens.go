// Package auth holds per-host OAuth credentials: a store keyed by email and
// a manager that refreshes access tokens just in time before booking.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Record is the stored credential shape for one host.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       int64     `json:"expiry"` // epoch seconds
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists credential records keyed by host email. Get returns
// (nil, nil) when the host never authorized; that is not an error.
type Store interface {
	Get(ctx context.Context, email string) (*Record, error)
	Put(ctx context.Context, email string, rec *Record) error
}

// TokenResponse is what the external refresh endpoint returns. RefreshToken
// is usually empty; the vendor does not always rotate it.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenResponse, error)
}

// RefreshError means the current booking attempt cannot proceed: the refresh
// token is missing or the vendor rejected the exchange. It is fatal for this
// one attempt only.
type RefreshError struct {
	Email string
	Err   error
}

func (e *RefreshError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("refresh credentials for %s", e.Email)
	}
	return fmt.Sprintf("refresh credentials for %s: %v", e.Email, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Manager is the credential cache front: reads through the store and
// refreshes stale access tokens before handing them out.
type Manager struct {
	store     Store
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager wires a manager over store and refresher.
func NewManager(store Store, refresher Refresher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the stored record, or (nil, nil) when the host never
// authorized.
func (m *Manager) Get(ctx context.Context, email string) (*Record, error) {
	return m.store.Get(ctx, email)
}

// Put stores a record, stamping UpdatedAt.
func (m *Manager) Put(ctx context.Context, email string, rec *Record) error {
	rec.UpdatedAt = m.now()
	return m.store.Put(ctx, email, rec)
}

// EnsureFresh returns a usable credential record for email. A token past its
// expiry is refreshed, persisted, and returned; the refresh token is
// preserved unless the vendor rotates it. Returns (nil, nil) when the host
// has no stored credentials and a *RefreshError when refresh is impossible
// or rejected.
func (m *Manager) EnsureFresh(ctx context.Context, email string) (*Record, error) {
	rec, err := m.store.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load credentials for %s: %w", email, err)
	}
	if rec == nil {
		return nil, nil
	}

	now := m.now()
	if now.Unix() < rec.Expiry {
		return rec, nil
	}

	if rec.RefreshToken == "" {
		return nil, &RefreshError{Email: email, Err: fmt.Errorf("no refresh token on record")}
	}

	resp, err := m.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return nil, &RefreshError{Email: email, Err: err}
	}

	rec.AccessToken = resp.AccessToken
	rec.Expiry = now.Unix() + int64(resp.ExpiresIn)
	rec.UpdatedAt = now
	if resp.RefreshToken != "" {
		rec.RefreshToken = resp.RefreshToken
	}
	if err := m.store.Put(ctx, email, rec); err != nil {
		return nil, fmt.Errorf("persist refreshed credentials for %s: %w", email, err)
	}
	m.logger.Info("refreshed access token", "email", email, "expiry", rec.Expiry)
	return rec, nil
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, email string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Put(_ context.Context, email string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = *rec
	return nil
}
