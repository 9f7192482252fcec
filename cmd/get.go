package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/core"
)

func newGetCommand(opts *Options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get [address]",
		Short: "Show the record stored for an account",
		Long:  "Shows the record for address, or for your own account when no address is given. Absent accounts print an all-zero record.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target account.Address
			if len(args) == 1 {
				var err error
				if target, err = account.ParseAddress(args[0]); err != nil {
					return err
				}
			} else {
				id, err := opts.loadIdentity()
				if err != nil {
					return err
				}
				target = id.Address()
			}

			svc, closer, err := opts.service(nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			rec, err := svc.GetEncryptedUserData(cmd.Context(), target)
			if err != nil {
				return err
			}
			return printRecord(cmd, format, rec)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func printRecord(cmd *cobra.Command, format string, rec core.EncryptedRecord) error {
	switch format {
	case "text":
		fmt.Fprint(cmd.OutOrStdout(), core.FormatRecord(rec))
		return nil
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newLsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List accounts that have a record in the local store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Records(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No records stored")
				return nil
			}
			fmt.Fprintf(out, "Records (%d):\n", len(records))
			for _, rec := range records {
				fmt.Fprintf(out, "  %s  nonce=%s  key=%s\n", rec.Owner, rec.Nonce, rec.EncryptionKey)
			}
			return nil
		},
	}
}
