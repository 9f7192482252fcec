package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCompactCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the store database to reclaim unused space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := os.Stat(store.Path())
			if err != nil {
				return err
			}
			sizeBefore := info.Size()

			if err := store.Compact(); err != nil {
				return err
			}

			info, err = os.Stat(store.Path())
			if err != nil {
				return err
			}
			sizeAfter := info.Size()

			fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
			return nil
		},
	}
}
