package api

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCredential is returned when an auth endpoint answers without a
	// credential.
	ErrEmptyCredential = errors.New("backend returned no access credential")
	// ErrAlreadyRegistered is returned when sign-up reports a duplicate user.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrUnsupportedRole is returned for role-scoped routes the role cannot use.
	ErrUnsupportedRole = errors.New("route not available for role")
)

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (h *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s: %d: %s: %s", h.Method, h.Path, h.StatusCode, h.Status, h.Body)
}

// IsStatus reports whether err wraps an [*HTTPError] with the given code.
func IsStatus(err error, code int) bool {
	var herr *HTTPError
	if !errors.As(err, &herr) {
		return false
	}
	return herr.StatusCode == code
}
