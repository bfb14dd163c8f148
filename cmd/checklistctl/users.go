package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewUsersCmd creates the users command group.
func NewUsersCmd(deps Deps, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Maintain user accounts",
	}
	cmd.AddCommand(newSetPasswordCmd(deps, flags))
	cmd.AddCommand(newAdminsCmd(deps, flags))
	return cmd
}

func newSetPasswordCmd(deps Deps, flags *globalFlags) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "set-password <email>",
		Short: "Replace the password of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return oops.Code("CONFIG_INVALID").Errorf("--password or CHECKLIST_NEW_PASSWORD is required")
			}
			store, err := openStoreFor(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.Users.FindByEmail(cmd.Context(), args[0])
			if err != nil {
				return oops.Code("USER_NOT_FOUND").With("email", args[0]).Wrap(err)
			}
			if err := store.Users.SetPassword(cmd.Context(), user.ID, password); err != nil {
				return oops.Code("SET_PASSWORD_FAILED").With("user_id", user.ID).Wrap(err)
			}
			cmd.Printf("Password updated for %s.\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", os.Getenv("CHECKLIST_NEW_PASSWORD"), "new password")
	return cmd
}

func newAdminsCmd(deps Deps, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "admins",
		Short: "Check that at least one active administrator exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStoreFor(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Users.CountActiveAdmins(cmd.Context())
			if err != nil {
				return oops.Code("QUERY_FAILED").With("operation", "count active admins").Wrap(err)
			}
			if count == 0 {
				return oops.Code("NO_ACTIVE_ADMIN").Errorf("no active administrator; run init-db or set one with the admin pages")
			}
			cmd.Printf("%d active administrator(s).\n", count)
			return nil
		},
	}
}

func openStoreFor(cmd *cobra.Command, deps Deps, flags *globalFlags) (*Store, error) {
	databaseURL, err := flags.requireDatabaseURL()
	if err != nil {
		return nil, err
	}
	store, err := deps.OpenStore(cmd.Context(), databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return store, nil
}
