// Command wareflow signs in to a WareFlow backend and runs session-scoped
// commands against it.
//
// Usage:
//
//	wareflow [global flags] <command> [command flags]
//
// Commands:
//
//	login        sign in with -email or -phone and -password
//	logout       sign out and clear the stored credential
//	whoami       print the resolved session
//	warehouses   list visible warehouses
//	zones        list zones of -warehouse
//	products     list products of -warehouse, or of -zone within it
//	permissions  print capabilities on -warehouse, or system permissions
//	serve        run a local gateway with gated endpoints and /metrics
//	mock-backend run an in-memory backend with seeded accounts
//
// The access credential persists in the configured store; the default is a
// file under the user config directory so consecutive commands share a
// session until it expires.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/wareflow/authkit"
)

type globalFlags struct {
	config    string
	baseURL   string
	store     string
	storePath string
	redisAddr string
	verbose   bool
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, g globalFlags, args []string) error
}

var commands = []command{
	{name: "login", usage: "sign in", run: runLogin},
	{name: "logout", usage: "sign out", run: runLogout},
	{name: "whoami", usage: "print the session", run: runWhoami},
	{name: "warehouses", usage: "list warehouses", run: runWarehouses},
	{name: "zones", usage: "list zones", run: runZones},
	{name: "products", usage: "list products", run: runProducts},
	{name: "permissions", usage: "print capabilities", run: runPermissions},
	{name: "serve", usage: "run the local gateway", run: runServe},
	{name: "mock-backend", usage: "run an in-memory backend", run: runMockBackend},
}

func main() {
	var g globalFlags
	fs := flag.NewFlagSet("wareflow", flag.ExitOnError)
	fs.StringVar(&g.config, "config", "", "YAML config file")
	fs.StringVar(&g.baseURL, "base-url", "", "backend API base URL (overrides config)")
	fs.StringVar(&g.store, "store", "", "credential store: memory, file, or redis (default file)")
	fs.StringVar(&g.storePath, "store-path", "", "credential file for the file store")
	fs.StringVar(&g.redisAddr, "redis-addr", "", `redis address for the redis store; "mini" starts an embedded miniredis`)
	fs.BoolVar(&g.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: wareflow [global flags] <command> [command flags]")
		fmt.Fprintln(fs.Output(), "\ncommands:")
		for _, c := range commands {
			fmt.Fprintf(fs.Output(), "  %-13s %s\n", c.name, c.usage)
		}
		fmt.Fprintln(fs.Output(), "\nglobal flags:")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	name, args := fs.Arg(0), fs.Args()[1:]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, g, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		if errors.Is(err, authkit.ErrInvalidCredentials) || errors.Is(err, authkit.ErrNotAuthenticated) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// loadConfig applies the global flags over the file and environment.
func loadConfig(g globalFlags) (authkit.Config, error) {
	cfg, err := authkit.LoadConfig(g.config)
	if err != nil {
		return cfg, err
	}
	if g.baseURL != "" {
		cfg.API.BaseURL = g.baseURL
	}
	if g.config == "" && os.Getenv(authkit.EnvStorageBackend) == "" {
		cfg.Storage.Backend = authkit.StorageFile
	}
	if g.store != "" {
		cfg.Storage.Backend = authkit.StorageBackend(g.store)
	}
	if g.storePath != "" {
		cfg.Storage.Path = g.storePath
	}
	if cfg.Storage.Backend == authkit.StorageFile && cfg.Storage.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return cfg, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.Storage.Path = filepath.Join(dir, "wareflow", "credential")
	}
	if g.redisAddr != "" {
		cfg.Storage.RedisAddr = g.redisAddr
	}
	if g.verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	} else if os.Getenv(authkit.EnvLogLevel) == "" {
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

// openEngine builds an engine from the global flags. The returned cleanup
// closes the engine and any embedded miniredis.
func openEngine(g globalFlags) (*authkit.Engine, func(), error) {
	engine, _, cleanup, err := openEngineWithLogger(g)
	return engine, cleanup, err
}

func openEngineWithLogger(g globalFlags) (*authkit.Engine, *zap.Logger, func(), error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := authkit.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	var mr *miniredis.Miniredis
	if cfg.Storage.Backend == authkit.StorageRedis && cfg.Storage.RedisAddr == "mini" {
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		cfg.Storage.RedisAddr = mr.Addr()
		log.Info("using miniredis", zap.String("addr", mr.Addr()))
	}

	engine, err := authkit.New().WithConfig(cfg).WithLogger(log).Build()
	if err != nil {
		if mr != nil {
			mr.Close()
		}
		return nil, nil, nil, err
	}
	cleanup := func() {
		engine.Close()
		if mr != nil {
			mr.Close()
		}
		_ = log.Sync()
	}
	return engine, log, cleanup, nil
}
