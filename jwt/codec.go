package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/wareflow/authkit/permission"
)

var (
	// ErrMalformed is wrapped by every decode failure.
	ErrMalformed = errors.New("malformed credential")
	// ErrMissingExpiry is returned when the exp claim is absent.
	ErrMissingExpiry = errors.New("credential has no expiry")
	// ErrExpired is returned by [Validate] for a credential past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Claims is the client's view of a decoded credential.
type Claims struct {
	Role      permission.Role
	Username  string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the credential is invalid at now. The expiry
// instant itself is already invalid.
func (c *Claims) ExpiredAt(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// wireClaims mirrors the backend payload. Role stays a raw string so an
// unknown value can be rejected explicitly.
type wireClaims struct {
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
	gjwt.RegisteredClaims
}

var unverified = gjwt.NewParser()

// Decode extracts claims from raw without verifying its signature.
func Decode(raw string) (claims *Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := unverified.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %v", ErrMalformed, err)
	}
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not utf-8", ErrMalformed)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not json", ErrMalformed)
	}

	var wc wireClaims
	if _, _, err := unverified.ParseUnverified(raw, &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	role, err := permission.ParseRole(wc.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w %q", ErrMalformed, err, wc.Role)
	}
	if wc.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMissingExpiry)
	}

	return &Claims{
		Role:      role,
		Username:  wc.Username,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}

// Validate decodes raw and rejects it if expired at now.
func Validate(raw string, now time.Time) (*Claims, error) {
	claims, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if claims.ExpiredAt(now) {
		return nil, ErrExpired
	}
	return claims, nil
}

// IsExpired reports whether raw is unusable at now. Empty input and any
// decode failure count as expired.
func IsExpired(raw string, now time.Time) bool {
	if raw == "" {
		return true
	}
	_, err := Validate(raw, now)
	return err != nil
}
