package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/internal/fakebackend"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/warehouse"
)

const mockPassword = "wareflow-demo"

func runMockBackend(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("mock-backend", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8089", "listen address")
	ttl := fs.Duration("ttl", 15*time.Minute, "access credential lifetime")
	_ = fs.Parse(args)

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log, err := authkit.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := newSeededBackend(*ttl, log.Named("backend"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	fmt.Printf("mock backend on http://%s%s\n", *addr, fakebackend.BasePath)
	fmt.Printf("accounts (password %q): owner@example.com, clerk@example.com, admin@example.com\n", mockPassword)
	return serveUntilDone(ctx, srv, log)
}

// newSeededBackend returns a backend with one account per role, two
// warehouses, and an employer holding zone_manage on the first.
func newSeededBackend(ttl time.Duration, log *zap.Logger) (*fakebackend.Backend, error) {
	backend, err := fakebackend.New(fakebackend.Options{TTL: ttl, Logger: log})
	if err != nil {
		return nil, err
	}

	backend.AddAccount(fakebackend.Account{
		Username: "owner", Email: "owner@example.com", Phone: "+15550200",
		Password: mockPassword, Role: permission.RoleOwner, FirstName: "Olive",
	})
	backend.AddAccount(fakebackend.Account{
		Username: "clerk", Email: "clerk@example.com", Phone: "+15550201",
		Password: mockPassword, Role: permission.RoleEmployer, FirstName: "Cal",
	})
	backend.AddAccount(fakebackend.Account{
		Username: "admin", Email: "admin@example.com",
		Password: mockPassword, Role: permission.RoleAdmin,
	})

	north := backend.AddWarehouse("owner", "North", "1 Dock Rd")
	south := backend.AddWarehouse("owner", "South", "9 Pier St")

	zone, err := backend.AddZone(north, "Cold storage", 40)
	if err != nil {
		return nil, err
	}
	if _, err := backend.AddProduct(north, warehouse.ProductInput{
		Title: "Pallet jack", Count: 3, Description: "manual", ZoneID: uint64(zone),
	}); err != nil {
		return nil, err
	}
	if _, err := backend.AddZone(south, "Dry goods", 120); err != nil {
		return nil, err
	}

	backend.Grant(north, "clerk", permission.CapZoneManage, permission.CapGetMyPermissions)
	backend.Grant(south, "clerk", permission.CapProductManage, permission.CapGetMyPermissions)
	return backend, nil
}
