package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/internal/fakebackend"
)

func newTestGateway(t *testing.T) (*authkit.Engine, *httptest.Server) {
	t.Helper()

	backend, err := newSeededBackend(time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("seed backend: %v", err)
	}
	api := httptest.NewServer(backend.Handler())
	t.Cleanup(api.Close)

	cfg := authkit.DefaultConfig()
	cfg.API.BaseURL = api.URL + fakebackend.BasePath
	engine, err := authkit.New().WithConfig(cfg).WithLogger(zap.NewNop()).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	gw := httptest.NewServer(newGateway(engine, zap.NewNop()))
	t.Cleanup(gw.Close)
	return engine, gw
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestGatewayRejectsAnonymous(t *testing.T) {
	_, gw := newTestGateway(t)

	if code, _ := get(t, gw.URL+"/warehouses"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	code, body := get(t, gw.URL+"/session")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, `"is_authenticated":false`) {
		t.Fatalf("unexpected session body %s", body)
	}
}

func TestGatewayGatesEmployerByCapability(t *testing.T) {
	engine, gw := newTestGateway(t)

	if err := engine.LoginWithEmail(context.Background(), "clerk@example.com", mockPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	code, body := get(t, gw.URL+"/warehouses/1/zones")
	if code != http.StatusOK {
		t.Fatalf("zones: expected 200, got %d (%s)", code, body)
	}
	if !strings.Contains(body, "Cold storage") {
		t.Fatalf("zones body missing seeded zone: %s", body)
	}

	if code, _ := get(t, gw.URL+"/warehouses/1/products"); code != http.StatusForbidden {
		t.Fatalf("products without grant: expected 403, got %d", code)
	}
	if code, _ := get(t, gw.URL+"/warehouses/2/products"); code != http.StatusOK {
		t.Fatalf("products with grant: expected 200, got %d", code)
	}

	code, body = get(t, gw.URL+"/warehouses/1/permissions")
	if code != http.StatusOK || !strings.Contains(body, "zone_manage") {
		t.Fatalf("permissions: got %d %s", code, body)
	}
}

func TestGatewayServesMetrics(t *testing.T) {
	engine, gw := newTestGateway(t)

	if err := engine.LoginWithEmail(context.Background(), "owner@example.com", mockPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	code, body := get(t, gw.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, "wareflow_login_success_total 1") {
		t.Fatalf("metrics missing login counter:\n%s", body)
	}
}

func TestGatewayHealth(t *testing.T) {
	_, gw := newTestGateway(t)

	code, body := get(t, gw.URL+"/healthz")
	if code != http.StatusOK || !strings.Contains(body, `"store_available":true`) {
		t.Fatalf("healthz: got %d %s", code, body)
	}
}

func TestLoadConfigDefaultsToFileStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(authkit.EnvStorageBackend, "")
	t.Setenv(authkit.EnvStoragePath, "")
	t.Setenv(authkit.EnvLogLevel, "")

	cfg, err := loadConfig(globalFlags{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != authkit.StorageFile {
		t.Fatalf("expected file store, got %q", cfg.Storage.Backend)
	}
	if want := filepath.Join(dir, "wareflow", "credential"); cfg.Storage.Path != want {
		t.Fatalf("expected path %q, got %q", want, cfg.Storage.Path)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected quiet logging, got %q", cfg.Log.Level)
	}

	cfg, err = loadConfig(globalFlags{store: "memory", verbose: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != authkit.StorageMemory || cfg.Log.Level != "debug" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestOpenEngineWithEmbeddedRedis(t *testing.T) {
	t.Setenv(authkit.EnvStorageBackend, "")
	backend, err := newSeededBackend(time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("seed backend: %v", err)
	}
	api := httptest.NewServer(backend.Handler())
	defer api.Close()

	engine, cleanup, err := openEngine(globalFlags{
		baseURL:   api.URL + fakebackend.BasePath,
		store:     "redis",
		redisAddr: "mini",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cleanup()

	snap, err := engine.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if snap.IsAuthenticated {
		t.Fatalf("empty redis should resolve anonymous")
	}
}
