package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"

	"backstage/shared/go/logging"
)

func main() {
	var (
		databaseURL string
		dir         string
		steps       int
		force       int
	)

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&databaseURL, "database-url", "", "postgres connection URL (default: $DATABASE_URL)")
	flagSet.StringVar(&dir, "dir", "migrations", "directory holding the migration files")
	flagSet.IntVarP(&steps, "steps", "n", 0, "number of migrations to apply or roll back (0 = all)")
	flagSet.IntVar(&force, "force", -1, "force the schema version after a failed migration, then exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return
	}

	logger := logging.New(logging.Config{Level: "info", Format: "text"})
	logging.SetGlobalLogger(logger)

	_ = godotenv.Load("config/local.env")
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal(errors.New("DATABASE_URL is required"), "missing database url")
	}

	command := "up"
	if args := flagSet.Args(); len(args) > 0 {
		command = args[0]
	}

	m, db, err := newMigrator(databaseURL, dir)
	if err != nil {
		logger.Fatal(err, "failed to create migrate instance")
	}
	defer db.Close()

	if force >= 0 {
		if err := m.Force(force); err != nil {
			logger.Fatal(err, "failed to force version")
		}
		logger.Info(fmt.Sprintf("schema version forced to %d", force))
		return
	}

	if err := run(m, command, steps); err != nil {
		logger.Fatal(err, "migration failed")
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("schema is empty")
	case err != nil:
		logger.Fatal(err, "failed to read schema version")
	default:
		zl := logger.Zerolog()
		zl.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	}
}

func newMigrator(databaseURL, dir string) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create postgres driver: %w", err)
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	sourceURL := fmt.Sprintf("file://%s", filepath.ToSlash(absPath))

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, db, nil
}

func run(m *migrate.Migrate, command string, steps int) error {
	var err error
	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] [up|down|version]")
	fmt.Fprintln(os.Stderr)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
