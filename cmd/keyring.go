package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
)

func newKeyringCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the store passphrase in the OS keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the passphrase to the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := core.ReadPassword("Enter password: ")
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(password)

			// Verify password is correct
			store, err := core.Open(opts.cfg.Database, password)
			if err != nil {
				return err
			}
			defer store.Close()
			if !store.IsSealed() {
				return errors.New("store is not sealed, nothing to save")
			}

			storeID, err := store.GetOrCreateStoreID()
			if err != nil {
				return err
			}
			if err := keyring.SavePassword(storeID, string(password)); err != nil {
				return fmt.Errorf("failed to save to keyring: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Password saved to keyring")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the passphrase from the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, err := core.StoreID(opts.cfg.Database)
			if err != nil || keyring.DeletePassword(storeID) != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No password stored in keyring")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password removed from keyring")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check whether the passphrase is in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, err := core.StoreID(opts.cfg.Database)
			if err == nil && keyring.HasPassword(storeID) {
				fmt.Fprintln(cmd.OutOrStdout(), "Password: stored in keyring")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Password: not stored")
			}
			return nil
		},
	})

	return cmd
}
