package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoCredential is returned by Load when nothing is stored.
	ErrNoCredential = errors.New("no stored credential")
	// ErrStoreUnavailable wraps backend failures of a credential store.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// CredentialStore is the durable home of the access credential.
//
// Save overwrites, Clear is idempotent, and a Load after Save returns the
// saved value.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Clear(ctx context.Context) error
}

// Cookie is a backend cookie kept across restarts. Origin is the scheme
// and host the cookie was received from.
type Cookie struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Expired reports whether c is past its expiry at now. Cookies without an
// expiry never expire here.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// CookieStore is implemented by credential stores that also keep the
// backend's cookies, so the refresh cookie outlives the process next to
// the access credential. LoadCookies returns an empty slice when nothing
// is stored.
type CookieStore interface {
	LoadCookies(ctx context.Context) ([]Cookie, error)
	SaveCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error
}

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	value   string
	cookies []Cookie
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements [CredentialStore].
func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.value == "" {
		return "", ErrNoCredential
	}
	return m.value, nil
}

// Save implements [CredentialStore]. Saving an empty string clears.
func (m *MemoryStore) Save(_ context.Context, credential string) error {
	m.mu.Lock()
	m.value = strings.TrimSpace(credential)
	m.mu.Unlock()
	return nil
}

// Clear implements [CredentialStore].
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.value = ""
	m.mu.Unlock()
	return nil
}

// LoadCookies implements [CookieStore].
func (m *MemoryStore) LoadCookies(context.Context) ([]Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Cookie{}, m.cookies...), nil
}

// SaveCookies implements [CookieStore].
func (m *MemoryStore) SaveCookies(_ context.Context, cookies []Cookie) error {
	m.mu.Lock()
	m.cookies = append([]Cookie(nil), cookies...)
	m.mu.Unlock()
	return nil
}

// ClearCookies implements [CookieStore].
func (m *MemoryStore) ClearCookies(context.Context) error {
	m.mu.Lock()
	m.cookies = nil
	m.mu.Unlock()
	return nil
}
