package authkit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/refresh"
	"github.com/wareflow/authkit/session"
	"github.com/wareflow/authkit/warehouse"
)

// Engine owns the client session for one process.
//
// Engine instances are created by [Builder.Build]. All methods are safe for
// concurrent use; there is exactly one session state per Engine.
type Engine struct {
	config     Config
	log        *zap.Logger
	now        func() time.Time
	store      session.CredentialStore
	state      *session.State
	client     *api.Client
	gateway    *refresh.Gateway
	cache      *permission.Cache
	warehouses *warehouse.Service
	audit      *auditDispatcher
	metrics    *Metrics
	ownedRedis *redis.Client

	initOnce sync.Once
	// pendingSignOut is a Logout that gave up waiting for resolution.
	pendingSignOut atomic.Bool
	// signedOut holds from Logout until the next sign-in and disables
	// 401 recovery.
	signedOut atomic.Bool
}

// Close describes the close operation and its observable behavior.
//
// Close flushes pending audit events and releases a Redis client the
// engine opened itself. The session is not signed out.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	e.closeOwned()
}

func (e *Engine) closeOwned() {
	if e.ownedRedis != nil {
		_ = e.ownedRedis.Close()
		e.ownedRedis = nil
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot copies the engine counters. A nil engine yields empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics returns the live collector for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Session returns the current session view. While IsLoading is true the
// other fields carry no authorization meaning.
func (e *Engine) Session() Snapshot {
	if e == nil || e.state == nil {
		return Snapshot{IsLoading: true}
	}
	return e.state.Snapshot()
}

// API returns the authenticated backend client.
func (e *Engine) API() *api.Client {
	return e.client
}

// Warehouses returns the role-aware warehouse client bound to this session.
func (e *Engine) Warehouses() *warehouse.Service {
	return e.warehouses
}

func (e *Engine) ready() bool {
	return e != nil && e.state != nil && e.client != nil && e.gateway != nil && e.cache != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func identityFrom(claims *jwt.Claims) session.Identity {
	return session.Identity{Role: claims.Role, Username: claims.Username}
}

/*
====================================
CLIENT OBSERVERS
====================================
*/

func (e *Engine) observeResponse(method, path string, status int, elapsed time.Duration) {
	e.metrics.Observe(MetricAPILatency, elapsed)
}

func (e *Engine) observeUnauthorized(path string) {
	e.metricInc(MetricUnauthorized)
}

func (e *Engine) observeRetry(path string, recovered bool) {
	if recovered {
		e.metricInc(MetricRetrySuccess)
		return
	}
	e.metricInc(MetricRetryFailure)
}

func (e *Engine) observePermissionHit(warehouseID string) {
	e.metricInc(MetricPermissionCacheHit)
}

func (e *Engine) observePermissionFetch(warehouseID string, err error) {
	e.metricInc(MetricPermissionFetch)
	if err != nil {
		e.metricInc(MetricPermissionFailure)
	}
}

func (e *Engine) observeSystemFetch(role permission.Role, err error) {
	e.metricInc(MetricSystemPermissionFetch)
	if err != nil {
		e.log.Warn("system permission fetch failed",
			zap.String("role", role.String()),
			zap.Error(err),
		)
	}
}
