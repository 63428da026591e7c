package authkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/internal/fakebackend"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/session"
)

const fakePassword = "s3cret-pass"

type engineFixture struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	store   *session.MemoryStore
	engine  *Engine
	whID    uint64
	otherWH uint64
}

// fixtureOption runs after the backend is seeded and before Build.
type fixtureOption func(t *testing.T, fx *engineFixture, b *Builder)

func newEngineFixture(t *testing.T, opts ...fixtureOption) *engineFixture {
	t.Helper()

	backend, err := fakebackend.New(fakebackend.Options{})
	if err != nil {
		t.Fatalf("fake backend: %v", err)
	}
	backend.AddAccount(fakebackend.Account{
		Username: "boss", Email: "boss@example.com", Phone: "+15550100",
		Password: fakePassword, Role: permission.RoleOwner,
	})
	backend.AddAccount(fakebackend.Account{
		Username: "clerk", Email: "clerk@example.com", Phone: "+15550101",
		Password: fakePassword, Role: permission.RoleEmployer,
		FirstName: "Cora", LastName: "Lee",
	})
	backend.AddAccount(fakebackend.Account{
		Username: "root", Email: "root@example.com",
		Password: fakePassword, Role: permission.RoleAdmin,
	})

	whID := backend.AddWarehouse("boss", "North", "1 Dock Rd")
	otherWH := backend.AddWarehouse("boss", "South", "9 Pier St")
	backend.Grant(whID, "clerk", permission.CapZoneManage, permission.CapGetMyPermissions)
	backend.Grant(otherWH, "clerk", permission.CapProductManage, permission.CapGetMyPermissions)

	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	fx := &engineFixture{
		backend: backend,
		server:  srv,
		store:   session.NewMemoryStore(),
		whID:    whID,
		otherWH: otherWH,
	}

	cfg := DefaultConfig()
	cfg.API.BaseURL = srv.URL + fakebackend.BasePath
	cfg.API.Timeout = 5 * time.Second

	b := New().
		WithConfig(cfg).
		WithCredentialStore(fx.store).
		WithLogger(zap.NewNop())
	for _, opt := range opts {
		opt(t, fx, b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	fx.engine = engine
	return fx
}

// withRefreshCookie preloads a refresh cookie for username, as a previous
// run of the process would have left it.
func withRefreshCookie(username string) fixtureOption {
	return func(t *testing.T, fx *engineFixture, b *Builder) {
		t.Helper()
		jar, err := cookiejar.New(nil)
		if err != nil {
			t.Fatalf("cookiejar: %v", err)
		}
		u, err := url.Parse(fx.server.URL)
		if err != nil {
			t.Fatalf("parse server url: %v", err)
		}
		jar.SetCookies(u, []*http.Cookie{fx.backend.RefreshCookieFor(username)})
		b.WithHTTPClient(&http.Client{Jar: jar, Timeout: 5 * time.Second})
	}
}

// withStoredCredential seeds the credential store.
func withStoredCredential(raw func(*fakebackend.Backend) (string, error)) fixtureOption {
	return func(t *testing.T, fx *engineFixture, _ *Builder) {
		t.Helper()
		tok, err := raw(fx.backend)
		if err != nil {
			t.Fatalf("issue credential: %v", err)
		}
		if err := fx.store.Save(context.Background(), tok); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
}

func withAudit(sink AuditSink) fixtureOption {
	return func(_ *testing.T, _ *engineFixture, b *Builder) {
		cfg := b.config
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 64
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg).WithAuditSink(sink)
	}
}

func (fx *engineFixture) login(t *testing.T, email string) {
	t.Helper()
	if err := fx.engine.LoginWithEmail(context.Background(), email, fakePassword); err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
}

func (fx *engineFixture) storedCredential(t *testing.T) string {
	t.Helper()
	raw, err := fx.store.Load(context.Background())
	if errors.Is(err, session.ErrNoCredential) {
		return ""
	}
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
