package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/warehouse"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withSession builds an engine, resolves the stored credential and hands the
// engine to fn only when a session exists.
func withSession(ctx context.Context, g globalFlags, fn func(*authkit.Engine) error) error {
	engine, cleanup, err := openEngine(g)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := engine.Init(ctx)
	if err != nil {
		return err
	}
	if !snap.IsAuthenticated {
		return fmt.Errorf("%w: run wareflow login first", authkit.ErrNotAuthenticated)
	}
	return fn(engine)
}

func parseWarehouse(raw string) (uint64, error) {
	if raw == "" {
		return 0, errors.New("-warehouse is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid warehouse id %q", raw)
	}
	return id, nil
}

func runLogin(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	phone := fs.String("phone", "", "account phone number")
	password := fs.String("password", "", "account password; WAREFLOW_PASSWORD is used when empty")
	_ = fs.Parse(args)

	if (*email == "") == (*phone == "") {
		return errors.New("exactly one of -email or -phone is required")
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("WAREFLOW_PASSWORD")
	}
	if pw == "" {
		return errors.New("-password or WAREFLOW_PASSWORD is required")
	}

	engine, cleanup, err := openEngine(g)
	if err != nil {
		return err
	}
	defer cleanup()

	if *email != "" {
		err = engine.LoginWithEmail(ctx, *email, pw)
	} else {
		err = engine.LoginWithPhone(ctx, *phone, pw)
	}
	if err != nil {
		return err
	}
	snap := engine.Session()
	fmt.Printf("signed in as %s (%s)\n", snap.Username, snap.Role)
	return nil
}

func runLogout(ctx context.Context, g globalFlags, _ []string) error {
	engine, cleanup, err := openEngine(g)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

type whoamiOutput struct {
	Status          string `json:"status"`
	IsAuthenticated bool   `json:"is_authenticated"`
	Role            string `json:"role,omitempty"`
	Username        string `json:"username,omitempty"`
}

func runWhoami(ctx context.Context, g globalFlags, _ []string) error {
	engine, cleanup, err := openEngine(g)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := engine.Init(ctx)
	if err != nil {
		return err
	}
	out := whoamiOutput{
		Status:          snap.State.String(),
		IsAuthenticated: snap.IsAuthenticated,
		Username:        snap.Username,
	}
	if snap.IsAuthenticated {
		out.Role = snap.Role.String()
	}
	return printJSON(out)
}

func runWarehouses(ctx context.Context, g globalFlags, _ []string) error {
	return withSession(ctx, g, func(engine *authkit.Engine) error {
		list, err := engine.Warehouses().List(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	})
}

func runZones(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("zones", flag.ExitOnError)
	wh := fs.String("warehouse", "", "warehouse id")
	_ = fs.Parse(args)

	id, err := parseWarehouse(*wh)
	if err != nil {
		return err
	}
	return withSession(ctx, g, func(engine *authkit.Engine) error {
		zones, err := engine.Warehouses().ListZones(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(zones)
	})
}

func runProducts(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("products", flag.ExitOnError)
	wh := fs.String("warehouse", "", "warehouse id")
	zone := fs.Int("zone", 0, "zone id; all products of the warehouse when zero")
	qr := fs.Bool("qr", false, "print QR image URLs instead of products")
	_ = fs.Parse(args)

	id, err := parseWarehouse(*wh)
	if err != nil {
		return err
	}
	return withSession(ctx, g, func(engine *authkit.Engine) error {
		svc := engine.Warehouses()
		var list []warehouse.Product
		if *zone > 0 {
			list, err = svc.ListZoneProducts(ctx, id, *zone)
		} else {
			list, err = svc.ListProducts(ctx, id)
		}
		if err != nil {
			return err
		}
		if *qr {
			for _, p := range list {
				fmt.Println(svc.QRImageURL(p))
			}
			return nil
		}
		return printJSON(list)
	})
}

func runPermissions(ctx context.Context, g globalFlags, args []string) error {
	fs := flag.NewFlagSet("permissions", flag.ExitOnError)
	wh := fs.String("warehouse", "", "warehouse id; system permissions when empty")
	user := fs.String("user", "", "username to inspect; defaults to the signed-in user")
	_ = fs.Parse(args)

	return withSession(ctx, g, func(engine *authkit.Engine) error {
		if *wh == "" {
			perms, err := engine.GetSystemPermissions(ctx)
			if err != nil {
				return err
			}
			return printJSON(perms)
		}
		if _, err := parseWarehouse(*wh); err != nil {
			return err
		}
		perms, err := engine.GetPermissionsForWarehouse(ctx, *wh, *user)
		if err != nil {
			return err
		}
		if perms == nil {
			perms = []string{}
		}
		return printJSON(perms)
	})
}
