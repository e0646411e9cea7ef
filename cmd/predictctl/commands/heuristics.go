package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/benvon/checkin-insights/internal/services/heuristic"
)

// NewHeuristicsCmd creates the heuristics command
func NewHeuristicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heuristics",
		Short: "Inspect the clinical heuristic weights",
	}
	cmd.AddCommand(newHeuristicsShowCmd())
	cmd.AddCommand(newHeuristicsValidateCmd())
	return cmd
}

func heuristicsPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("HEURISTIC_CONFIG_PATH")
}

func loadHeuristics(path string) (*heuristic.Engine, error) {
	cfg, err := heuristic.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return heuristic.NewEngine(cfg)
}

func newHeuristicsShowCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active heuristic configuration",
		Long:  "Print the heuristic configuration from --file, HEURISTIC_CONFIG_PATH, or the built-in default",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadHeuristics(heuristicsPath(file))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# heuristic configuration version %s\n", engine.Version())
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(engine.Config()); err != nil {
				return fmt.Errorf("failed to encode heuristic config: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Heuristic configuration YAML")
	return cmd
}

func newHeuristicsValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a heuristic configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := heuristicsPath(file)
			engine, err := loadHeuristics(path)
			if err != nil {
				return err
			}
			if path == "" {
				path = "built-in default"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (version %s)\n", path, engine.Version())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Heuristic configuration YAML")
	return cmd
}
