package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/git"
	"github.com/illarion/cipherstore/internal/keyring"
)

func newStatusCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(opts.cfg.Database); os.IsNotExist(err) {
				fmt.Fprintf(out, "No store found at %s\n", opts.cfg.Database)
				fmt.Fprintln(out, "Run 'cipherstore init' to create one")
				return nil
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := store.Status()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Store:     %s\n", status.Path)
			if info, err := os.Stat(status.Path); err == nil {
				fmt.Fprintf(out, "Size:      %s\n", formatSize(info.Size()))
			}
			fmt.Fprintf(out, "Records:   %d\n", status.Records)
			fmt.Fprintf(out, "Events:    %d\n", status.LastSeq)
			if !status.Modified.IsZero() {
				fmt.Fprintf(out, "Modified:  %s\n", status.Modified.Format(time.RFC3339))
			}
			if status.Sealed {
				fmt.Fprintln(out, "Sealed:    yes")
				if id, err := store.GetStoreID(); err == nil && keyring.HasPassword(id) {
					fmt.Fprintln(out, "Keyring:   password stored")
				}
			} else {
				fmt.Fprintln(out, "Sealed:    no")
			}

			if _, err := os.Stat(opts.cfg.Identity); err == nil {
				fmt.Fprint(out, git.Format(git.Check([]string{opts.cfg.Identity})))
			}
			return nil
		},
	}
}
