package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sebastianm/diskmand/internal/eventloop"
	"github.com/sebastianm/diskmand/internal/spawnedjob"
)

func execCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a helper command as a spawned job and report its outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			loop, err := eventloop.New(log)
			if err != nil {
				return err
			}
			defer loop.Close()

			cancel := cmd.Context()
			if d := cfg.HelperTimeout(); d > 0 {
				var stop context.CancelFunc
				cancel, stop = context.WithTimeout(cancel, d)
				defer stop()
			}

			opts := spawnedjob.Options{Cancel: cancel}
			if cmd.Flags().Changed("input") {
				opts.Input = []byte(input)
			}

			outcomes := make(chan spawnedjob.Outcome, 1)
			opts.Completed = func(_ *spawnedjob.Job, res spawnedjob.Result) bool {
				if res.Err == nil {
					cmd.OutOrStdout().Write(res.Stdout)
				}
				return false // let the default policy produce the outcome
			}
			opts.Notify = func(_ *spawnedjob.Job, oc spawnedjob.Outcome) {
				outcomes <- oc
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return loop.Run(gctx)
			})
			g.Go(func() error {
				oc := <-outcomes
				loop.Stop()
				if oc.Success {
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), oc.Message)
				return errors.New("helper command failed")
			})

			spawnedjob.New(loop, log, shellquote.Join(args...), opts)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Payload to write to the helper's stdin")
	return cmd
}
