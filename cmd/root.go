package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/config"
)

// Options holds global flags for all commands
type Options struct {
	ConfigPath string
	Database   string
	Identity   string
	Remote     string
	Verbose    bool

	cfg *config.Config
}

// NewRootCommand creates the cipherstore command tree
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "cipherstore",
		Short:         "Per-account encrypted record store",
		Long:          "Stores one bundle of opaque ciphertext words per account, with a nonce and an encryption key reference.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Database != "" {
				cfg.Database = opts.Database
			}
			if opts.Identity != "" {
				cfg.Identity = opts.Identity
			}
			if opts.Remote != "" {
				cfg.Remote = opts.Remote
			}

			level := cfg.Level()
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))

			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $"+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&opts.Database, "db", "", "store database file (default "+config.DefaultDatabase+")")
	root.PersistentFlags().StringVar(&opts.Identity, "identity", "", "identity key file (default "+config.DefaultIdentity+")")
	root.PersistentFlags().StringVar(&opts.Remote, "remote", "", "server base URL, e.g. http://127.0.0.1:8545")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newInitCommand(opts),
		newKeygenCommand(opts),
		newWhoamiCommand(opts),
		newStoreCommand(opts),
		newUpdateKeyCommand(opts),
		newGetCommand(opts),
		newLsCommand(opts),
		newEventsCommand(opts),
		newDiffCommand(opts),
		newServeCommand(opts),
		newStatusCommand(opts),
		newPasswdCommand(opts),
		newCompactCommand(opts),
		newKeyringCommand(opts),
	)
	return root
}

// Execute runs the command line against ctx
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
