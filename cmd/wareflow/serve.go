package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/metrics/export/prometheus"
	"github.com/wareflow/authkit/middleware"
	"github.com/wareflow/authkit/permission"
)

func runServe(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8090", "listen address")
	_ = fs.Parse(args)

	engine, log, cleanup, err := openEngineWithLogger(g)
	if err != nil {
		return err
	}
	defer cleanup()

	// Resolve once up front so the first request does not pay for it.
	if _, err := engine.Init(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newGateway(engine, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("gateway listening", zap.String("addr", *addr))
	return serveUntilDone(ctx, srv, log)
}

func serveUntilDone(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down", zap.String("addr", srv.Addr))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// newGateway exposes the signed-in session to local tools. Each route is
// gated the same way the engine gates its own operations.
func newGateway(engine *authkit.Engine, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	wh := middleware.PathWarehouse("id")

	mux.Handle("GET /metrics", prometheus.NewExporter(engine).Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		hs := engine.Health(r.Context())
		if !hs.StoreAvailable {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, log, map[string]any{
			"store_available":  hs.StoreAvailable,
			"store_latency_ms": hs.StoreLatency.Milliseconds(),
			"refresh_attempts": hs.RefreshAttempts,
			"permission_loads": hs.PermissionLoads,
			"audit_dropped":    hs.AuditDropped,
		})
	})

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		snap, err := engine.Init(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		out := whoamiOutput{
			Status:          snap.State.String(),
			IsAuthenticated: snap.IsAuthenticated,
			Username:        snap.Username,
		}
		if snap.IsAuthenticated {
			out.Role = snap.Role.String()
		}
		writeJSON(w, log, out)
	})

	mux.Handle("GET /warehouses", middleware.RequireSession(engine)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			list, err := engine.Warehouses().List(r.Context())
			respond(w, log, list, err)
		})))

	mux.Handle("GET /warehouses/{id}/permissions", middleware.RequireSession(engine)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, err := engine.GetPermissionsForWarehouse(r.Context(), r.PathValue("id"), "")
			if perms == nil && err == nil {
				perms = []string{}
			}
			respond(w, log, perms, err)
		})))

	mux.Handle("GET /warehouses/{id}/zones", middleware.RequireCapability(engine, permission.CapZoneManage, wh)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			zones, err := engine.Warehouses().ListZones(r.Context(), id)
			respond(w, log, zones, err)
		})))

	mux.Handle("GET /warehouses/{id}/products", middleware.RequireCapability(engine, permission.CapProductManage, wh)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			products, err := engine.Warehouses().ListProducts(r.Context(), id)
			respond(w, log, products, err)
		})))

	return mux
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid warehouse id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respond(w http.ResponseWriter, log *zap.Logger, v any, err error) {
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, authkit.ErrNotAuthenticated):
			status = http.StatusUnauthorized
		case errors.Is(err, authkit.ErrDenied), errors.Is(err, api.ErrUnsupportedRole):
			status = http.StatusForbidden
		}
		log.Warn("gateway request failed", zap.Int("status", status), zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, log, v)
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response", zap.Error(err))
	}
}
