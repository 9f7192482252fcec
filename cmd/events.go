package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/transport"
)

// pollInterval is how often a local follower re-reads the store file
var pollInterval = time.Second

// longPoll is how long a remote follower lets the server hold each request
const longPoll = 30 * time.Second

type eventReader func(ctx context.Context, after uint64, limit int) ([]core.Event, error)

func newEventsCommand(opts *Options) *cobra.Command {
	var (
		after  uint64
		limit  int
		follow bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print DataStored and KeyUpdated notifications",
		Long: "Prints the event log. With --follow, keeps printing new events until interrupted. " +
			"A local follower opens the store only while reading, so writers are not blocked.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			emit := func(ev core.Event) error {
				if asJSON {
					return json.NewEncoder(out).Encode(ev)
				}
				_, err := fmt.Fprintf(out, "%d\t%s\t%s\n", ev.Seq, ev.Kind, ev.Account)
				return err
			}

			var (
				read     eventReader
				interval time.Duration
			)
			if opts.cfg.Remote != "" {
				client := transport.NewClient(opts.cfg.Remote, nil)
				read = client.Events
				if follow {
					read = func(ctx context.Context, after uint64, limit int) ([]core.Event, error) {
						return client.WaitEvents(ctx, after, limit, longPoll)
					}
				}
			} else {
				path := opts.cfg.Database
				read = func(ctx context.Context, after uint64, limit int) ([]core.Event, error) {
					return core.ReadEvents(ctx, path, after, limit)
				}
				interval = pollInterval
			}

			if !follow {
				return printEvents(ctx, read, after, limit, emit)
			}
			return followEvents(ctx, read, after, interval, emit)
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a sequence number above this")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events until interrupted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return cmd
}

func printEvents(ctx context.Context, read eventReader, after uint64, limit int, emit func(core.Event) error) error {
	events, err := read(ctx, after, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

// followEvents reads the log from after until ctx ends, pausing interval
// between reads. A store busy with a writer is retried on the next tick.
func followEvents(ctx context.Context, read eventReader, after uint64, interval time.Duration, emit func(core.Event) error) error {
	last := after
	for {
		events, err := read(ctx, last, 0)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, core.ErrStoreBusy):
			slog.Debug("store busy, retrying", "after", last)
		case err != nil:
			return err
		}

		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
			last = ev.Seq
		}

		if interval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
