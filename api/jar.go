package api

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/wareflow/authkit/session"
)

// sessionJar is the client's own cookie jar. It can be emptied on sign-out
// while requests are in flight and, when the credential store also keeps
// cookies, mirrors every cookie it accepts into that store so the refresh
// cookie survives a restart.
type sessionJar struct {
	jar     atomic.Pointer[cookiejar.Jar]
	persist session.CookieStore
	log     *zap.Logger
	now     func() time.Time

	restored sync.Once
	mu       sync.Mutex
	kept     map[string]session.Cookie
}

func newSessionJar(persist session.CookieStore, log *zap.Logger) (*sessionJar, error) {
	j := &sessionJar{
		persist: persist,
		log:     log,
		now:     time.Now,
		kept:    make(map[string]session.Cookie),
	}
	jar, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	j.jar.Store(jar)
	if persist == nil {
		j.restored.Do(func() {})
	}
	return j, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// restore loads persisted cookies once, on first use of the jar.
func (j *sessionJar) restore() {
	j.restored.Do(func() {
		stored, err := j.persist.LoadCookies(context.Background())
		if err != nil {
			j.log.Warn("persisted cookies unavailable", zap.Error(err))
			return
		}
		now := j.now()
		jar := j.jar.Load()

		j.mu.Lock()
		defer j.mu.Unlock()
		for _, c := range stored {
			if c.Expired(now) {
				continue
			}
			u, err := url.Parse(c.Origin)
			if err != nil || u.Host == "" {
				continue
			}
			jar.SetCookies(u, []*http.Cookie{{
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				Domain:   c.Domain,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			}})
			j.kept[cookieKey(c)] = c
		}
	})
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.restore()
	j.jar.Load().SetCookies(u, cookies)
	if j.persist == nil || len(cookies) == 0 {
		return
	}

	now := j.now()
	origin := u.Scheme + "://" + u.Host

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, hc := range cookies {
		c := session.Cookie{
			Origin:   origin,
			Name:     hc.Name,
			Value:    hc.Value,
			Path:     hc.Path,
			Domain:   hc.Domain,
			Expires:  hc.Expires,
			Secure:   hc.Secure,
			HttpOnly: hc.HttpOnly,
		}
		switch {
		case hc.MaxAge < 0:
			c.Expires = now
		case hc.MaxAge > 0:
			c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
		}
		if c.Value == "" || c.Expired(now) {
			delete(j.kept, cookieKey(c))
			continue
		}
		j.kept[cookieKey(c)] = c
	}

	list := make([]session.Cookie, 0, len(j.kept))
	for _, c := range j.kept {
		list = append(list, c)
	}
	if err := j.persist.SaveCookies(context.Background(), list); err != nil {
		j.log.Warn("persist cookies failed", zap.Error(err))
	}
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.restore()
	return j.jar.Load().Cookies(u)
}

// reset swaps in an empty jar and drops persisted cookies. A later restore
// finds nothing to load.
func (j *sessionJar) reset() error {
	jar, err := newCookieJar()
	if err != nil {
		return err
	}
	j.restored.Do(func() {})

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.Store(jar)
	clear(j.kept)
	if j.persist != nil {
		return j.persist.ClearCookies(context.Background())
	}
	return nil
}

func cookieKey(c session.Cookie) string {
	return c.Origin + "|" + c.Domain + "|" + c.Path + "|" + c.Name
}

// ForgetCookies drops every cookie held by the client's own jar, including
// the refresh cookie and its persisted copy. It reports false when the
// transport was supplied with a foreign jar, which is left untouched, or
// when the persisted copy could not be removed.
func (c *Client) ForgetCookies() bool {
	if c.jar == nil {
		return false
	}
	if err := c.jar.reset(); err != nil {
		c.log.Warn("forget cookies failed", zap.Error(err))
		return false
	}
	return true
}

// OwnsCookies reports whether the client manages its own cookie jar.
func (c *Client) OwnsCookies() bool {
	return c.jar != nil
}
