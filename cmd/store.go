package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/core"
)

// bundleFlags collects the text form of a bundle from command flags
type bundleFlags struct {
	in core.BundleInput
}

func (f *bundleFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.in.Amount, "amount", "", "encrypted amount (hex word)")
	flags.StringVar(&f.in.Shares, "shares", "", "encrypted shares (hex word)")
	flags.StringVar(&f.in.Rewards, "rewards", "", "encrypted rewards (hex word)")
	flags.StringVar(&f.in.Strategy, "strategy", "", "encrypted strategy (hex word)")
	flags.StringVar(&f.in.Timestamp, "timestamp", "", "encrypted timestamp (hex word)")
	flags.StringVar(&f.in.Nonce, "nonce", "0", "nonce (decimal or 0x hex)")
	flags.StringVar(&f.in.EncryptionKey, "key", "", "encryption key reference (address)")
}

func newStoreCommand(opts *Options) *cobra.Command {
	var flags bundleFlags

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store the encrypted bundle for your account",
		Long:  "Replaces every field of the caller's record with the given bundle.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := core.ParseBundle(flags.in)
			if err != nil {
				return err
			}

			id, err := opts.loadIdentity()
			if err != nil {
				return err
			}
			svc, closer, err := opts.service(id)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := svc.StoreEncryptedData(cmd.Context(), id.Address(), b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored record for %s\n", id.Address())
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newUpdateKeyCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "update-key <address>",
		Short: "Replace the encryption key reference of your record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newKey, err := account.ParseAddress(args[0])
			if err != nil {
				return err
			}

			id, err := opts.loadIdentity()
			if err != nil {
				return err
			}
			svc, closer, err := opts.service(id)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := svc.UpdateEncryptionKey(cmd.Context(), id.Address(), newKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Encryption key for %s is now %s\n", id.Address(), newKey)
			return nil
		},
	}
}
