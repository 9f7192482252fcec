package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/transport"
)

func newServeCommand(opts *Options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = opts.cfg.Listen
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			slog.Info("serving store", "path", store.Path(), "listen", listen, "sealed", store.IsSealed())
			return transport.NewServer(store).ListenAndServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	return cmd
}
