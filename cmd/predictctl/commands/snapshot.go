package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSnapshotCmd creates the snapshot command
func NewSnapshotCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage offline SQLite check-in snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the check-in tables in the --sqlite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.SQLite == "" {
				return errors.New("--sqlite is required")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.EnsureSnapshotSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot schema ready in %s\n", opts.SQLite)
			return nil
		},
	})
	return cmd
}
