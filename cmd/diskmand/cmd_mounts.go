package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastianm/diskmand/internal/mount"
	"github.com/sebastianm/diskmand/internal/udevenc"
)

func mountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mounts",
		Short: "Print the live mount table with object paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			table, err := mount.Table(cfg.MountinfoPath)
			if err != nil {
				return err
			}
			for _, m := range table {
				fmt.Fprintf(cmd.OutOrStdout(), "%-48s /org/diskmand/mounts/%s\n", m, udevenc.Safe(m.Path()))
			}
			return nil
		},
	}
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <udev-encoded string>...",
		Short: "Decode udev-encoded strings such as ID_FS_LABEL_ENC values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range args {
				fmt.Fprintln(cmd.OutOrStdout(), udevenc.Decode(s))
			}
			return nil
		},
	}
}
