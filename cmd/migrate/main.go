// Command migrate manages the Postgres schema.
//
//	migrate up | down | status | to <version> | create <name> | validate
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

var errUsage = errors.New("usage: migrate [-dir path] up|down|status|to <version>|create <name>|validate")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := flags.String("dir", migrate.SourceDir, "migration source directory for create")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errUsage
	}
	cmd, rest := flags.Arg(0), flags.Args()[1:]

	switch cmd {
	case "create":
		if len(rest) != 1 {
			return errUsage
		}
		path, err := migrate.Create(*dir, rest[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", path)
		return nil
	case "validate":
		if err := migrate.Validate(migrate.Migrations()); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations ok")
		return nil
	case "up", "down", "status", "to":
	default:
		return errUsage
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DB.IsSQLite() {
		return errors.New("goose migrations target postgres; sqlite schemas come from AutoMigrate")
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": cmd})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	return apply(ctx, cfg, logg, sqlDB, cmd, rest, out)
}

func apply(ctx context.Context, cfg *config.Config, logg *logger.Logger, sqlDB *sql.DB, cmd string, rest []string, out io.Writer) error {
	runner, err := migrate.NewRunner(sqlDB, nil)
	if err != nil {
		return err
	}

	var applied []migrate.Applied
	switch cmd {
	case "up":
		applied, err = runner.Up(ctx)
	case "down":
		if cfg.App.IsProd() {
			return errors.New("refusing to roll back in prod; use `to <version>`")
		}
		applied, err = runner.Down(ctx)
	case "to":
		if len(rest) != 1 {
			return errUsage
		}
		target, perr := strconv.ParseInt(rest[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("version %q: expected YYYYMMDDHHMMSS", rest[0])
		}
		applied, err = runner.To(ctx, target)
	case "status":
		states, serr := runner.Status(ctx)
		if serr != nil {
			return serr
		}
		for _, s := range states {
			state := "pending"
			if s.Applied {
				state = "applied " + s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\n", s.Version, s.Path, state)
		}
		return nil
	}

	for _, a := range applied {
		fmt.Fprintf(out, "%s %d %s (%s)\n", a.Direction, a.Version, a.Path, a.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "migrations", len(applied)), "migrate complete")
	return nil
}
