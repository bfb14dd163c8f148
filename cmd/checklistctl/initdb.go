package main

import (
	"errors"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
)

type initDBConfig struct {
	email    string
	password string
	reset    bool
}

// NewInitDBCmd creates the init-db command: migrate and seed an administrator.
func NewInitDBCmd(deps Deps, flags *globalFlags) *cobra.Command {
	cfg := &initDBConfig{}
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema and seed an administrator account",
		Long: `Applies all migrations and creates an active administrator from
--admin-email and --admin-password (ADMIN_EMAIL / ADMIN_PASSWORD).
An existing account with that email is left untouched. --reset rolls the
schema back first, dropping all data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInitDB(cmd, deps, flags, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "administrator email")
	cmd.Flags().StringVar(&cfg.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "administrator password")
	cmd.Flags().BoolVar(&cfg.reset, "reset", false, "drop all tables before migrating")
	return cmd
}

func runInitDB(cmd *cobra.Command, deps Deps, flags *globalFlags, cfg *initDBConfig) error {
	if cfg.email == "" || cfg.password == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--admin-email and --admin-password are required")
	}
	databaseURL, err := flags.requireDatabaseURL()
	if err != nil {
		return err
	}

	err = withMigrator(deps, flags, func(m Migrator) error {
		if cfg.reset {
			if err := m.Down(); err != nil {
				return err
			}
		}
		return m.Up()
	})
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "init-db migrate").Wrap(err)
	}

	store, err := deps.OpenStore(cmd.Context(), databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer store.Close()

	existing, err := store.Users.FindByEmail(cmd.Context(), cfg.email)
	switch {
	case err == nil:
		cmd.Printf("Administrator %s already exists.\n", existing.Email)
	case errors.Is(err, shared.ErrNotFound):
		admin, err := store.Users.Create(cmd.Context(), users.NewUser{
			Email:    cfg.email,
			Password: cfg.password,
			IsAdmin:  true,
		})
		if err != nil {
			return oops.Code("SEED_FAILED").With("email", cfg.email).Wrap(err)
		}
		cmd.Printf("Created administrator %s.\n", admin.Email)
	default:
		return oops.Code("SEED_FAILED").With("email", cfg.email).Wrap(err)
	}
	cmd.Println("Initialized database.")
	return nil
}
