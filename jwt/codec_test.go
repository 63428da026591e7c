package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/wareflow/authkit/permission"
)

func newHSIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(IssuerConfig{
		TTL:           15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fixture-secret-fixture-secret-32"),
		Issuer:        "wareflow-test",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func segment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newHSIssuer(t, now)

	cases := []struct {
		role     permission.Role
		username string
	}{
		{permission.RoleAdmin, "root"},
		{permission.RoleOwner, "olga"},
		{permission.RoleEmployer, "alice"},
		{permission.RoleEmployer, ""},
	}
	for _, tc := range cases {
		raw, err := iss.Issue(tc.role, tc.username)
		if err != nil {
			t.Fatalf("issue %s: %v", tc.role, err)
		}
		claims, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.role, err)
		}
		if claims.Role != tc.role {
			t.Fatalf("role = %q, want %q", claims.Role, tc.role)
		}
		if claims.Username != tc.username {
			t.Fatalf("username = %q, want %q", claims.Username, tc.username)
		}
		if want := now.Add(15 * time.Minute); !claims.ExpiresAt.Equal(want) {
			t.Fatalf("expiry = %v, want %v", claims.ExpiresAt, want)
		}
		if IsExpired(raw, now) {
			t.Fatal("fresh credential reported expired")
		}
	}
}

func TestDecodeEd25519Credential(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	iss, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	raw, err := iss.Issue(permission.RoleOwner, "olga")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Role != permission.RoleOwner {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	header := segment(`{"alg":"HS256","typ":"JWT"}`)
	exp := time.Now().Add(time.Hour).Unix()
	validBody := `{"role":"owner","exp":` + itoa(exp) + `}`

	cases := map[string]string{
		"empty":          "",
		"one segment":    "abc",
		"two segments":   header + "." + segment(validBody),
		"four segments":  header + "." + segment(validBody) + ".sig.extra",
		"empty payload":  header + "..sig",
		"bad base64":     header + ".!!!." + "sig",
		"non utf8":       header + "." + base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}) + ".sig",
		"not json":       header + "." + segment("not json") + ".sig",
		"json array":     header + "." + segment(`["owner"]`) + ".sig",
		"unknown role":   header + "." + segment(`{"role":"superuser","exp":`+itoa(exp)+`}`) + ".sig",
		"cased role":     header + "." + segment(`{"role":"Owner","exp":`+itoa(exp)+`}`) + ".sig",
		"missing role":   header + "." + segment(`{"exp":`+itoa(exp)+`}`) + ".sig",
		"missing expiry": header + "." + segment(`{"role":"owner"}`) + ".sig",
		"string expiry":  header + "." + segment(`{"role":"owner","exp":"soon"}`) + ".sig",
		"bad header":     segment("nope") + "." + segment(validBody) + ".sig",
	}

	for name, raw := range cases {
		claims, err := Decode(raw)
		if err == nil {
			t.Fatalf("%s: expected decode failure", name)
		}
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
		if claims != nil {
			t.Fatalf("%s: expected nil claims", name)
		}
		if !IsExpired(raw, time.Now()) {
			t.Fatalf("%s: malformed credential must count as expired", name)
		}
	}
}

func TestDecodeUnknownRoleWrapsRoleError(t *testing.T) {
	now := time.Now()
	iss := newHSIssuer(t, now)
	raw, err := iss.IssueWithExpiry(permission.Role("manager"), "bob", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Decode(raw); !errors.Is(err, permission.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestIsExpiredBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newHSIssuer(t, now)
	raw, err := iss.IssueWithExpiry(permission.RoleOwner, "olga", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if IsExpired(raw, now.Add(59*time.Second)) {
		t.Fatal("credential expired before its expiry")
	}
	if !IsExpired(raw, now.Add(time.Minute)) {
		t.Fatal("credential must be invalid from its expiry instant")
	}
	if !IsExpired(raw, now.Add(time.Hour)) {
		t.Fatal("credential valid long after expiry")
	}
	if _, err := Validate(raw, now.Add(time.Hour)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestIssuerRotatesWithinOneSecond(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	iss := newHSIssuer(t, now)

	first, err := iss.Issue(permission.RoleEmployer, "clerk")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := iss.Issue(permission.RoleEmployer, "clerk")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first == second {
		t.Fatal("credentials issued at the same instant must differ")
	}
	claims, err := Decode(second)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Username != "clerk" || claims.Role != permission.RoleEmployer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestIssuerRejectsBadConfig(t *testing.T) {
	if _, err := NewIssuer(IssuerConfig{TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected zero TTL to fail")
	}
	if _, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected missing hs256 key to fail")
	}
	if _, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected invalid ed25519 key to fail")
	}
	if _, err := NewIssuer(IssuerConfig{TTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected unsupported method to fail")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
