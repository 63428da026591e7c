package authkit

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/refresh"
	"github.com/wareflow/authkit/session"
	"github.com/wareflow/authkit/warehouse"
)

// Builder assembles an [Engine].
//
// Builder instances are single use: configure with the With* methods, then
// call [Builder.Build] once.
type Builder struct {
	config Config

	httpClient *http.Client
	store      session.CredentialStore
	redis      redis.UniversalClient
	logger     *zap.Logger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient sets the transport used for backend calls. The client is
// copied; a cookie jar is added to the copy when it has none.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithCredentialStore overrides the store selected by Config.Storage.
func (b *Builder) WithCredentialStore(store session.CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis supplies the client for the redis storage backend. The engine
// does not close a client supplied here.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger. Without one, a zap logger is built from
// Config.Log.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink sets the destination for audit events. It has no effect
// unless Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock sets the time source used for expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the API latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration and wires the credential store, API
// client, refresh gateway, permission cache, and session state. The
// returned engine is unresolved until [Engine.Init] runs.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		l, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		log = l
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		log:     log,
		now:     now,
		state:   session.NewState(),
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CREDENTIAL STORE --------
	store, err := b.credentialStore(cfg, engine)
	if err != nil {
		return nil, err
	}
	engine.store = store

	// -------- API CLIENT --------
	opts := []api.Option{
		api.WithLogger(log.Named("api")),
		api.WithHooks(api.Hooks{
			OnResponse:     engine.observeResponse,
			OnUnauthorized: engine.observeUnauthorized,
			OnRetry:        engine.observeRetry,
		}),
	}
	if b.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(b.httpClient))
	}
	client, err := api.New(api.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, store, opts...)
	if err != nil {
		engine.closeOwned()
		return nil, err
	}
	engine.client = client

	// -------- PERMISSION CACHE --------
	engine.cache = permission.NewCache(client, permission.Options{
		CacheSystemPermissions: cfg.Permission.CacheSystemPermissions,
		OnHit:                  engine.observePermissionHit,
		OnFetch:                engine.observePermissionFetch,
		OnSystemFetch:          engine.observeSystemFetch,
	})

	// -------- REFRESH GATEWAY --------
	gateway, err := refresh.NewGateway(client, refresh.Options{
		Store:        store,
		Now:          now,
		OnRefreshed:  engine.onRefreshed,
		OnFailed:     engine.onRefreshFailed,
		OnSuperseded: engine.onRefreshSuperseded,
	})
	if err != nil {
		engine.closeOwned()
		return nil, err
	}
	engine.gateway = gateway
	client.SetRefresher(engine.recoverCredential)

	engine.warehouses = warehouse.New(client, engine)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, log.Named("audit"))

	b.built = true

	return engine, nil
}

func (b *Builder) credentialStore(cfg Config, engine *Engine) (session.CredentialStore, error) {
	if b.store != nil {
		return b.store, nil
	}

	switch cfg.Storage.Backend {
	case StorageFile:
		fs, err := session.NewFileStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialStore, err)
		}
		return fs, nil
	case StorageRedis:
		client := b.redis
		if client == nil {
			if cfg.Storage.RedisAddr == "" {
				return nil, errors.New("redis storage requires a client or Storage RedisAddr")
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
			engine.ownedRedis = owned
			client = owned
		}
		return session.NewRedisStore(client, cfg.Storage.RedisPrefix), nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// NewLogger builds the zap logger the engine uses when none is supplied.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func cloneConfig(in Config) Config {
	return in
}
