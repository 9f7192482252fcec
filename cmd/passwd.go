package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
)

func newPasswdCommand(opts *Options) *cobra.Command {
	var unseal bool

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Seal the store, change its passphrase or remove sealing",
		Long:  "Re-encrypts every record under a new passphrase. With --unseal, records are written back in the clear.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var newPassword []byte
			if !unseal {
				newPassword, err = core.ReadPasswordConfirm()
				if err != nil {
					return err
				}
				defer crypto.ClearBytes(newPassword)
			}

			if err := store.ChangePassword(newPassword); err != nil {
				return err
			}

			// A saved keyring entry would now be stale
			if id, err := store.GetStoreID(); err == nil && keyring.HasPassword(id) {
				if err := keyring.DeletePassword(id); err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Removed stale password from keyring")
				}
			}

			if unseal {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Store unsealed")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Password changed successfully")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unseal, "unseal", false, "remove at-rest sealing")
	return cmd
}
