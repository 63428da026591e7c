package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/authkit/session"
	"go.uber.org/zap"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// authPaths never carry a bearer credential and never trigger recovery.
var authPaths = []string{
	"/auth/sign-in-email",
	"/auth/sign-in-phone",
	"/auth/register",
	"/auth/sign-up",
	"/auth/refresh",
}

// IsAuthPath reports whether path belongs to the auth family.
func IsAuthPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = "/" + strings.Trim(path, "/")
	for _, p := range authPaths {
		if path == p {
			return true
		}
	}
	return false
}

// Refresher obtains a fresh credential after a 401. It must persist the
// credential before returning.
type Refresher func(ctx context.Context) (string, error)

// Hooks observe client traffic. All fields are optional.
type Hooks struct {
	OnResponse     func(method, path string, status int, elapsed time.Duration)
	OnUnauthorized func(path string)
	OnRetry        func(path string, recovered bool)
}

// Config holds transport settings.
type Config struct {
	// BaseURL includes the API base path, e.g. "http://localhost:8089/api/v1".
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Option customizes a [Client].
type Option func(*Client)

// WithHTTPClient uses hc for transport. A cookie jar is added when hc has
// none; hc itself is not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.http = &cp
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHooks installs traffic observers.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		c.hooks = h
	}
}

// WithRefresher installs the 401 recovery path.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.SetRefresher(r)
	}
}

// Client talks to the backend on behalf of the current session.
type Client struct {
	base      string
	userAgent string
	http      *http.Client
	store     session.CredentialStore
	log       *zap.Logger
	hooks     Hooks
	refresher atomic.Pointer[Refresher]
	jar       *sessionJar
}

// New builds a client reading credentials from store.
func New(cfg Config, store session.CredentialStore, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}
	if store == nil {
		return nil, errors.New("api credential store is nil")
	}

	c := &Client{
		base:      base,
		userAgent: cfg.UserAgent,
		store:     store,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.http.Jar == nil {
		persist, _ := store.(session.CookieStore)
		jar, err := newSessionJar(persist, c.log)
		if err != nil {
			return nil, err
		}
		c.jar = jar
		c.http.Jar = jar
	}
	return c, nil
}

// SetRefresher replaces the 401 recovery path. nil disables recovery.
func (c *Client) SetRefresher(r Refresher) {
	if r == nil {
		c.refresher.Store(nil)
		return
	}
	c.refresher.Store(&r)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base
}

type requestConfig struct {
	noRefresh bool
	header    http.Header
}

// RequestOption customizes one call.
type RequestOption func(*requestConfig)

// NoRefresh disables 401 recovery for the call.
func NoRefresh() RequestOption {
	return func(rc *requestConfig) {
		rc.noRefresh = true
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.header == nil {
			rc.header = make(http.Header)
		}
		rc.header.Set(key, value)
	}
}

// Get issues a GET and decodes the JSON response into out when non-nil.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one logical request, recovering from a single 401 as described
// in the package documentation.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	rc := requestConfig{}
	for _, opt := range opts {
		opt(&rc)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	authPath := IsAuthPath(path)

	data, err := c.send(ctx, method, path, payload, reqID, authPath, rc.header)
	if err == nil {
		return decodeBody(data, out)
	}
	if !IsStatus(err, http.StatusUnauthorized) || authPath || rc.noRefresh {
		return err
	}

	refresher := c.refresher.Load()
	if refresher == nil {
		return err
	}
	if c.hooks.OnUnauthorized != nil {
		c.hooks.OnUnauthorized(path)
	}

	// The retry flag is local to this call: the re-issued request below never
	// re-enters recovery.
	if _, rerr := (*refresher)(ctx); rerr != nil {
		c.log.Info("credential recovery failed",
			zap.String("request_id", reqID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(rerr),
		)
		if c.hooks.OnRetry != nil {
			c.hooks.OnRetry(path, false)
		}
		return err
	}

	data, err = c.send(ctx, method, path, payload, reqID, authPath, rc.header)
	if c.hooks.OnRetry != nil {
		c.hooks.OnRetry(path, err == nil)
	}
	if err != nil {
		return err
	}
	return decodeBody(data, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, reqID string, authPath bool, extra http.Header) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+strings.TrimLeft(path, "/"), rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if !authPath {
		c.attachCredential(ctx, req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("request_id", reqID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	elapsed := time.Since(start)

	if c.hooks.OnResponse != nil {
		c.hooks.OnResponse(method, path, resp.StatusCode, elapsed)
	}
	c.log.Debug("request complete",
		zap.String("request_id", reqID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}
	return b, nil
}

func (c *Client) attachCredential(ctx context.Context, req *http.Request) {
	cred, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoCredential) {
			c.log.Warn("credential store read failed", zap.Error(err))
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+cred)
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func decodeBody(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
