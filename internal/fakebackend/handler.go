package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/permission"
)

// Handler returns the HTTP surface rooted at "/". API routes live under
// [BasePath]; QR images under /qr_storage/.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+BasePath+"/auth/sign-in-email", b.signInEmail)
	mux.HandleFunc("POST "+BasePath+"/auth/sign-in-phone", b.signInPhone)
	mux.HandleFunc("POST "+BasePath+"/auth/sign-up", b.signUp)
	mux.HandleFunc("GET "+BasePath+"/auth/refresh", b.refreshAccess)
	mux.HandleFunc("GET "+BasePath+"/logout", b.withAuth(b.logout))
	mux.HandleFunc(BasePath+"/", b.withAuth(b.route))
	mux.HandleFunc("GET /qr_storage/{file}", b.qrImage)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.record(r.Method, r.URL.Path)
		b.log.Debug("fake backend request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(api.RequestIDHeader)),
		)
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/*
====================================
AUTH ROUTES
====================================
*/

type signInRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (b *Backend) signInEmail(w http.ResponseWriter, r *http.Request) {
	b.signIn(w, r, func(a *Account, req signInRequest) bool {
		return req.Email != "" && strings.EqualFold(a.Email, req.Email)
	})
}

func (b *Backend) signInPhone(w http.ResponseWriter, r *http.Request) {
	b.signIn(w, r, func(a *Account, req signInRequest) bool {
		return req.PhoneNumber != "" && a.Phone == req.PhoneNumber
	})
}

func (b *Backend) signIn(w http.ResponseWriter, r *http.Request, match func(*Account, signInRequest) bool) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	b.mu.Lock()
	var found *Account
	for _, a := range b.accounts {
		if match(a, req) && a.Password == req.Password {
			found = a
			break
		}
	}
	if found == nil {
		b.mu.Unlock()
		// The real backend reports bad credentials as a server error.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "invalid credentials"})
		return
	}
	tok, err := b.issueAccessLocked(found.Username)
	cookie := b.newRefreshLocked(found.Username)
	b.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
}

func (b *Backend) signUp(w http.ResponseWriter, r *http.Request) {
	var reg api.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	role, err := permission.ParseRole(reg.Role)
	if err != nil || reg.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.accounts {
		if a.Username == reg.Username || (reg.Email != "" && strings.EqualFold(a.Email, reg.Email)) {
			writeJSON(w, http.StatusOK, map[string]string{"error": "user already exists"})
			return
		}
	}
	b.accounts[reg.Username] = &Account{
		Username:  reg.Username,
		Email:     reg.Email,
		Phone:     reg.PhoneNumber,
		Password:  reg.Password,
		Role:      role,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Surname:   reg.Surname,
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user created"})
}

func (b *Backend) refreshAccess(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token missing"})
		return
	}

	b.mu.Lock()
	username, ok := b.refresh[c.Value]
	if b.failRefresh || !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token invalid"})
		return
	}
	delete(b.refresh, c.Value)
	tok, err := b.issueAccessLocked(username)
	next := b.newRefreshLocked(username)
	b.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	http.SetCookie(w, next)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request, acct *Account) {
	b.mu.Lock()
	fail := b.failLogout
	if !fail {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			delete(b.refresh, c.Value)
		}
	}
	b.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (b *Backend) qrImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n"))
}

/*
====================================
AUTHENTICATION
====================================
*/

type authedHandler func(w http.ResponseWriter, r *http.Request, acct *Account)

func (b *Backend) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing credential"})
			return
		}
		if _, err := jwt.Validate(raw, b.now()); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
			return
		}

		b.mu.Lock()
		username, known := b.access[raw]
		var acct *Account
		if known {
			if a, ok := b.accounts[username]; ok {
				cp := *a
				acct = &cp
			}
		}
		b.mu.Unlock()

		if acct == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
			return
		}
		next(w, r, acct)
	}
}
