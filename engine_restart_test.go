package authkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/internal/fakebackend"
	"github.com/wareflow/authkit/session"
)

// buildOverFile builds an engine against the fixture backend whose
// credential and cookies live in the file at path, as a fresh process would.
func buildOverFile(t *testing.T, fx *engineFixture, path string) (*Engine, *session.FileStore) {
	t.Helper()
	store, err := session.NewFileStore(path)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	cfg := DefaultConfig()
	cfg.API.BaseURL = fx.server.URL + fakebackend.BasePath
	cfg.API.Timeout = 5 * time.Second

	engine, err := New().WithConfig(cfg).WithCredentialStore(store).WithLogger(zap.NewNop()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

func TestRestartRefreshesExpiredCredential(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credential")

	first, store := buildOverFile(t, fx, path)
	if err := first.LoginWithEmail(ctx, "boss@example.com", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := os.Stat(store.CookiePath()); err != nil {
		t.Fatalf("refresh cookie not persisted: %v", err)
	}
	first.Close()

	expired, err := fx.backend.IssueExpired("boss")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("seed expired credential: %v", err)
	}
	refreshes := fx.backend.Hits(routeRefresh)

	second, _ := buildOverFile(t, fx, path)
	snap, err := second.Init(ctx)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !snap.IsAuthenticated || snap.Username != "boss" {
		t.Fatalf("expected refresh through the persisted cookie, got %+v", snap)
	}
	if got := fx.backend.Hits(routeRefresh); got != refreshes+1 {
		t.Fatalf("expected one refresh, got %d", got-refreshes)
	}
	if tok, err := store.Load(ctx); err != nil || tok == expired {
		t.Fatalf("expected rotated credential on disk, got err=%v", err)
	}

	if err := second.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(store.CookiePath()); !os.IsNotExist(err) {
		t.Fatalf("logout must remove persisted cookies, got %v", err)
	}
	second.Close()

	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("seed expired credential: %v", err)
	}
	third, _ := buildOverFile(t, fx, path)
	snap, err = third.Init(ctx)
	if err != nil {
		t.Fatalf("init after logout: %v", err)
	}
	if snap.IsAuthenticated {
		t.Fatalf("signed-out session must not come back, got %+v", snap)
	}
}
