package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"finextract/internal/config"
	"finextract/internal/repository/sqlstore"
)

const usage = "usage: migrate up | down | steps N | version"

var errUsage = errors.New(usage)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := sqlstore.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.DB.Driver, err)
	}
	m, err := sqlstore.NewMigrator(db)
	if err != nil {
		return err
	}
	defer m.Close()

	switch args[0] {
	case "up":
		return report(m.Up(), "up", fmt.Sprintf("%s schema is current", cfg.DB.Driver))
	case "down":
		return report(m.Down(), "down", "all migrations reverted")
	case "steps":
		if len(args) < 2 {
			return errUsage
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("steps: %q is not a number", args[1])
		}
		return report(m.Steps(n), "steps", fmt.Sprintf("moved %d step(s)", n))
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading version: %w", err)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		return nil
	default:
		return errUsage
	}
}

func report(err error, op, done string) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	log.Print(done)
	return nil
}
