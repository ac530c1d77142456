package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebastianm/diskmand/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "diskmand",
		Short:         "Disk management service daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(mountsCmd())
	rootCmd.AddCommand(decodeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the daemon logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	lvl, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return cfg, log, nil
}
