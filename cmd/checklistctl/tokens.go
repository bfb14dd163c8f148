package main

import (
	"github.com/spf13/cobra"
)

// NewTokensCmd creates the tokens command group.
func NewTokensCmd(deps Deps, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage password reset tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired password reset tokens now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStoreFor(cmd, deps, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Tokens.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Removed %d expired tokens.\n", removed)
			return nil
		},
	})
	return cmd
}
