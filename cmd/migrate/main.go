package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/example/jwtauth/internal/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		migrationsDir string
		steps         int
	)
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the PostgreSQL registry schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&migrationsDir, "dir", "./migrations", "migrations directory")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(migrationsDir, func(m *migrate.Migrate) error {
				if err := step(m, steps, true); err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				cmd.Println("✓ Migrations applied successfully")
				return nil
			})
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "number of migration steps (0 applies all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(migrationsDir, func(m *migrate.Migrate) error {
				if err := step(m, steps, false); err != nil {
					return fmt.Errorf("migration down failed: %w", err)
				}
				cmd.Println("✓ Migrations rolled back successfully")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migration steps (0 rolls back all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrate(migrationsDir, func(m *migrate.Migrate) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					v, dirty, err = 0, false, nil
				}
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				if dirty {
					return fmt.Errorf("database is in a dirty state (version %d)", v)
				}
				cmd.Printf("Current migration version: %d\n", v)
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrate(migrationsDir, func(m *migrate.Migrate) error {
				if err := m.Force(v); err != nil {
					return fmt.Errorf("forcing version: %w", err)
				}
				cmd.Printf("✓ Forced database to version %d\n", v)
				return nil
			})
		},
	}

	root.AddCommand(up, down, version, force)
	return root
}

func step(m *migrate.Migrate, steps int, up bool) error {
	var err error
	switch {
	case steps > 0 && up:
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case up:
		err = m.Up()
	default:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// withMigrate opens the configured postgres database and runs fn with a
// migrate instance bound to it.
func withMigrate(migrationsDir string, fn func(*migrate.Migrate) error) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.DBAdapter != "postgres" {
		return fmt.Errorf("migrations only work with PostgreSQL. Current adapter: %s", cfg.DBAdapter)
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("opening database connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	return fn(m)
}
