package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
)

func newInitCommand(opts *Options) *cobra.Command {
	var seal bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var password []byte
			if seal {
				var err error
				password, err = GetPasswordForInit()
				if err != nil {
					return err
				}
				defer crypto.ClearBytes(password)
			}

			store, err := core.Init(opts.cfg.Database, password)
			if err != nil {
				return err
			}
			defer store.Close()

			state := "unsealed"
			if store.IsSealed() {
				state = "sealed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized %s (%s)\n", store.Path(), state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seal, "seal", false, "encrypt records at rest with a passphrase")
	return cmd
}
