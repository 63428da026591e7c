package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrFetchFailed wraps any backend failure while loading capabilities.
	ErrFetchFailed = errors.New("permission fetch failed")
	// ErrStale is returned to callers whose fetch completed after a Reset.
	ErrStale = errors.New("permission fetch superseded by identity change")
	// ErrWarehouseRequired is returned for an empty warehouse id.
	ErrWarehouseRequired = errors.New("warehouse id required")
)

// Fetcher loads capability data from the backend.
type Fetcher interface {
	FetchWarehousePermissions(ctx context.Context, role Role, warehouseID, username string) ([]string, error)
	FetchSystemPermissions(ctx context.Context, role Role) ([]SystemPermission, error)
}

// Options tunes cache policy and observation hooks. Hooks run synchronously
// and must not call back into the cache.
type Options struct {
	// CacheSystemPermissions keeps system descriptors for the lifetime of the
	// identity. When false every SystemPermissions call fetches.
	CacheSystemPermissions bool

	OnHit         func(warehouseID string)
	OnFetch       func(warehouseID string, err error)
	OnSystemFetch func(role Role, err error)
}

type setKey struct {
	warehouseID string
	username    string
}

// Cache holds capability sets per (warehouse, username) for one identity.
type Cache struct {
	fetcher Fetcher
	opts    Options

	mu     sync.Mutex
	gen    uint64
	sets   map[setKey][]string
	system map[Role][]SystemPermission

	group   singleflight.Group
	fetches atomic.Uint64
}

// NewCache creates an empty cache backed by fetcher.
func NewCache(fetcher Fetcher, opts Options) *Cache {
	return &Cache{
		fetcher: fetcher,
		opts:    opts,
		sets:    make(map[setKey][]string),
		system:  make(map[Role][]SystemPermission),
	}
}

// GetForWarehouse returns the capabilities granted to username on
// warehouseID.
//
// Only employers are scoped by grants: for any other role the cached value
// (normally empty) is returned without a fetch. For employers the first
// call per warehouse issues one fetch, shared by concurrent callers; later
// calls are served from memory until [Cache.Reset]. A failed fetch leaves
// nothing cached so the next call retries.
func (c *Cache) GetForWarehouse(ctx context.Context, role Role, warehouseID, username string) ([]string, error) {
	warehouseID = strings.TrimSpace(warehouseID)
	if warehouseID == "" {
		return nil, ErrWarehouseRequired
	}
	k := setKey{warehouseID: warehouseID, username: username}

	c.mu.Lock()
	if !role.Scoped() {
		out := cloneStrings(c.sets[k])
		c.mu.Unlock()
		return out, nil
	}
	if set, ok := c.sets[k]; ok {
		out := cloneStrings(set)
		c.mu.Unlock()
		if c.opts.OnHit != nil {
			c.opts.OnHit(warehouseID)
		}
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// The generation is part of the flight key so callers arriving after a
	// Reset never join a flight that belongs to the previous identity.
	flightKey := fmt.Sprintf("wh:%d:%s:%s", gen, warehouseID, username)
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.fetches.Add(1)
		caps, err := c.fetcher.FetchWarehousePermissions(fetchCtx, role, warehouseID, username)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		if c.opts.OnFetch != nil {
			c.opts.OnFetch(warehouseID, err)
		}
		if err != nil {
			return nil, err
		}

		caps = normalizeCapabilities(caps)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return nil, ErrStale
		}
		c.sets[k] = caps
		return caps, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneStrings(res.Val.([]string)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SystemPermissions returns the capability descriptors available to role.
// With CacheSystemPermissions the first successful result is kept until
// [Cache.Reset]; failures are never cached.
func (c *Cache) SystemPermissions(ctx context.Context, role Role) ([]SystemPermission, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}

	c.mu.Lock()
	if c.opts.CacheSystemPermissions {
		if perms, ok := c.system[role]; ok {
			out := cloneSystem(perms)
			c.mu.Unlock()
			return out, nil
		}
	}
	gen := c.gen
	c.mu.Unlock()

	flightKey := fmt.Sprintf("sys:%d:%s", gen, role)
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.fetches.Add(1)
		perms, err := c.fetcher.FetchSystemPermissions(fetchCtx, role)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		if c.opts.OnSystemFetch != nil {
			c.opts.OnSystemFetch(role, err)
		}
		if err != nil {
			return nil, err
		}
		if perms == nil {
			perms = []SystemPermission{}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return nil, ErrStale
		}
		if c.opts.CacheSystemPermissions {
			c.system[role] = perms
		}
		return perms, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneSystem(res.Val.([]SystemPermission)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset drops every cached set and descriptor list. In-flight fetches
// complete with [ErrStale] and store nothing.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.sets = make(map[setKey][]string)
	c.system = make(map[Role][]SystemPermission)
}

// Loaded reports whether a capability set is cached for the pair.
func (c *Cache) Loaded(warehouseID, username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sets[setKey{warehouseID: strings.TrimSpace(warehouseID), username: username}]
	return ok
}

// Cached returns a copy of the cached set without fetching.
func (c *Cache) Cached(warehouseID, username string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneStrings(c.sets[setKey{warehouseID: strings.TrimSpace(warehouseID), username: username}])
}

// CachedSystem returns the cached descriptors for role without fetching.
func (c *Cache) CachedSystem(role Role) []SystemPermission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSystem(c.system[role])
}

// Empty reports whether nothing is cached.
func (c *Cache) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets) == 0 && len(c.system) == 0
}

// Fetches returns the number of backend fetches issued so far.
func (c *Cache) Fetches() uint64 {
	return c.fetches.Load()
}

// Contains reports whether name is present in caps.
func Contains(caps []string, name string) bool {
	name = NormalizeCapability(name)
	if name == "" {
		return false
	}
	for _, c := range caps {
		if c == name {
			return true
		}
	}
	return false
}

func normalizeCapabilities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		name := NormalizeCapability(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneSystem(in []SystemPermission) []SystemPermission {
	if in == nil {
		return nil
	}
	out := make([]SystemPermission, len(in))
	copy(out, in)
	return out
}
