package authkit

import (
	"slices"
	"testing"
)

func TestLint_DefaultConfigWarnings(t *testing.T) {
	cfg := DefaultConfig()
	codes := cfg.Lint().Codes()

	// Defaults favor a zero-setup local run.
	want := []string{"storage_ephemeral", "audit_disabled"}
	if !slices.Equal(codes, want) {
		t.Fatalf("expected %v, got %v", want, codes)
	}
}

func TestLint_HardenedConfigNoWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://wareflow.example.com/api/v1"
	cfg.Storage.Backend = StorageFile
	cfg.Storage.Path = "/var/lib/wareflow/credential"
	cfg.Audit.Enabled = true

	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws.Codes())
	}
}

func TestLint_PlaintextRemoteAPI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://wareflow.example.com/api/v1"
	if !slices.Contains(cfg.Lint().Codes(), "api_plaintext") {
		t.Fatal("expected api_plaintext")
	}

	cfg.API.BaseURL = "http://127.0.0.1:8089/api/v1"
	if slices.Contains(cfg.Lint().Codes(), "api_plaintext") {
		t.Fatal("loopback http must not warn")
	}
}

func TestLint_NoTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Timeout = 0
	if !slices.Contains(cfg.Lint().Codes(), "api_no_timeout") {
		t.Fatal("expected api_no_timeout")
	}
}

func TestLint_BlockingAuditSmallBuffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Audit.BufferSize = 4
	if !slices.Contains(cfg.Lint().Codes(), "audit_blocking_small_buffer") {
		t.Fatal("expected audit_blocking_small_buffer")
	}

	cfg.Audit.DropIfFull = true
	if slices.Contains(cfg.Lint().Codes(), "audit_blocking_small_buffer") {
		t.Fatal("dropping audit must not warn")
	}
}

func TestLint_SystemPermissionsUncached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Permission.CacheSystemPermissions = false
	if !slices.Contains(cfg.Lint().Codes(), "system_permissions_uncached") {
		t.Fatal("expected system_permissions_uncached")
	}
}
