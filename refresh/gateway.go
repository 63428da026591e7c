package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/session"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRefreshFailed wraps every failure of a refresh attempt.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrSuperseded is returned by attempts started before [Gateway.Supersede].
	ErrSuperseded = errors.New("refresh superseded")
)

// Exchanger performs the backend refresh call and returns the new raw
// credential.
type Exchanger interface {
	ExchangeRefresh(ctx context.Context) (string, error)
}

// ExchangerFunc adapts a function to [Exchanger].
type ExchangerFunc func(ctx context.Context) (string, error)

// ExchangeRefresh implements [Exchanger].
func (f ExchangerFunc) ExchangeRefresh(ctx context.Context) (string, error) {
	return f(ctx)
}

// Options configures a [Gateway]. Hooks run inside the attempt while the
// gateway lock is held; they must not call back into the gateway.
type Options struct {
	Store session.CredentialStore
	Now   func() time.Time

	OnRefreshed  func(claims *jwt.Claims)
	OnFailed     func(err error)
	OnSuperseded func()
}

// Result is the outcome of a successful refresh.
type Result struct {
	Credential string
	Claims     *jwt.Claims
	// Shared is true when the caller joined an attempt started by another.
	Shared bool
}

// Gateway coalesces refresh attempts.
type Gateway struct {
	exchanger Exchanger
	opts      Options

	group singleflight.Group

	mu  sync.Mutex
	gen uint64

	attempts atomic.Uint64
}

// NewGateway creates a gateway. exchanger and opts.Store are required.
func NewGateway(exchanger Exchanger, opts Options) (*Gateway, error) {
	if exchanger == nil {
		return nil, errors.New("refresh exchanger is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("refresh credential store is nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{exchanger: exchanger, opts: opts}, nil
}

// Refresh obtains a new credential, joining an in-flight attempt when one
// exists. On success the credential is persisted before OnRefreshed runs.
func (g *Gateway) Refresh(ctx context.Context) (*Result, error) {
	g.mu.Lock()
	gen := g.gen
	g.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return g.attempt(detached, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*Result)
		out.Shared = res.Shared
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Supersede invalidates every attempt currently in flight.
func (g *Gateway) Supersede() {
	g.mu.Lock()
	g.gen++
	g.mu.Unlock()
}

// Attempts returns the number of backend refresh calls issued.
func (g *Gateway) Attempts() uint64 {
	return g.attempts.Load()
}

func (g *Gateway) attempt(ctx context.Context, gen uint64) (*Result, error) {
	g.attempts.Add(1)

	raw, err := g.exchange(ctx)
	var claims *jwt.Claims
	if err == nil {
		claims, err = jwt.Validate(raw, g.opts.Now())
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.gen != gen {
		if g.opts.OnSuperseded != nil {
			safeCall(g.opts.OnSuperseded)
		}
		return nil, ErrSuperseded
	}
	if err == nil {
		if serr := g.opts.Store.Save(ctx, raw); serr != nil {
			err = serr
		}
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		if g.opts.OnFailed != nil {
			safeCall(func() { g.opts.OnFailed(err) })
		}
		return nil, err
	}

	if g.opts.OnRefreshed != nil {
		safeCall(func() { g.opts.OnRefreshed(claims) })
	}
	return &Result{Credential: raw, Claims: claims}, nil
}

func (g *Gateway) exchange(ctx context.Context) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = ""
			err = fmt.Errorf("exchanger panic: %v", r)
		}
	}()
	return g.exchanger.ExchangeRefresh(ctx)
}

func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
