package main

import (
	"context"
	"errors"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/eventloop"
	"github.com/sebastianm/diskmand/internal/mount"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			loop, err := eventloop.New(log)
			if err != nil {
				return err
			}
			defer loop.Close()

			table, err := mount.Table(cfg.MountinfoPath)
			if err != nil {
				log.Warn("reading mount table failed", "error", err)
			} else {
				log.Info("mount table read", "mounts", len(table))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()

			log.Info("diskmand started")
			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("diskmand stopped")
			return nil
		},
	}
}
