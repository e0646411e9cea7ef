package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benvon/checkin-insights/internal/app"
	"github.com/benvon/checkin-insights/internal/services/features"
	"github.com/benvon/checkin-insights/internal/services/registry"
)

// NewModelsCmd creates the models command
func NewModelsCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect model artifacts",
	}
	cmd.AddCommand(newModelsListCmd(opts))
	return cmd
}

func newModelsListCmd(opts *GlobalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List model availability per prediction type",
		Long:  "Load every prediction type's artifact from MODEL_STORE and report whether it is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := opts.newLogger()
			if err != nil {
				return err
			}

			store, closeStore, err := app.OpenModelStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			statuses := registry.New(store, features.SchemaVersion, log).Status(cmd.Context())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), statuses)
			}
			return printStatuses(cmd, statuses)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printStatuses(cmd *cobra.Command, statuses []registry.ModelStatus) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tAVAILABLE\tVERSION\tREASON")
	for _, s := range statuses {
		version := "-"
		if s.Version != nil {
			version = *s.Version
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.Type, s.Available, version, s.Reason)
	}
	return w.Flush()
}
