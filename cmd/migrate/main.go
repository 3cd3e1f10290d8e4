package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/quizdesk/internal/config"
)

// Only the postgres store driver needs migrations; sqlite creates its table
// on open and redis has no schema.
func main() {
	var migrationDir, dbURL string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.StringVar(&dbURL, "database", "", "Postgres URL (defaults to DATABASE_URL)")
	flag.Parse()

	if dbURL == "" {
		dbURL = config.Load().DatabaseURL
	}
	if dbURL == "" {
		fatalf("DATABASE_URL is not set")
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	m, err := migrate.New("file://"+migrationDir, dbURL)
	if err != nil {
		fatalf("Migration failed to initialize: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatalf("Up failed: %v", err)
		}
		color.Green("Migrated up successfully")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatalf("Down failed: %v", err)
		}
		color.Green("Migrated down successfully")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			color.Yellow("No migration applied yet")
			return
		}
		if err != nil {
			fatalf("Version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			fatalf("force requires version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			fatalf("Invalid version: %v", err)
		}
		if err := m.Force(v); err != nil {
			fatalf("Force failed: %v", err)
		}
		color.Green("Forced version to %d", v)
	default:
		printUsage()
	}
}

func fatalf(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
