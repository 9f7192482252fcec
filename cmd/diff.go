package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
)

func newDiffCommand(opts *Options) *cobra.Command {
	var flags bundleFlags

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show how a store would change your record",
		Long:  "Takes the same flags as 'store' and prints the difference against the stored record without writing anything.",
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
			svc, closer, err := opts.service(nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			me := id.Address()
			current, err := svc.GetEncryptedUserData(cmd.Context(), me)
			if err != nil {
				return err
			}

			diff := core.DiffRecords(me.String(), current, b.Record(me))
			if diff == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
