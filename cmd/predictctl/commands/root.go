package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/checkin-insights/internal/config"
	"github.com/benvon/checkin-insights/internal/database"
	"github.com/benvon/checkin-insights/internal/logger"
)

// GlobalOptions are the persistent flags shared by every command
type GlobalOptions struct {
	Debug  bool
	SQLite string
}

// NewRootCmd creates the predictctl command tree
func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:           "predictctl",
		Short:         "Operator tool for the check-in prediction service",
		Long:          "Run predictions, inspect model availability and heuristic weights, and enqueue cache warming jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Log to stderr at debug level")
	rootCmd.PersistentFlags().StringVar(&opts.SQLite, "sqlite", "", "Read check-ins from a SQLite snapshot instead of DATABASE_URL")

	rootCmd.AddCommand(NewPredictCmd(opts))
	rootCmd.AddCommand(NewModelsCmd(opts))
	rootCmd.AddCommand(NewHeuristicsCmd())
	rootCmd.AddCommand(NewWarmCmd(opts))
	rootCmd.AddCommand(NewSnapshotCmd(opts))

	return rootCmd
}

func (o *GlobalOptions) loadConfig() (*config.Config, error) {
	overrides := map[string]string{}
	if o.SQLite != "" {
		overrides["DATABASE_DRIVER"] = database.DriverSQLite
		overrides["DATABASE_URL"] = o.SQLite
	}
	cfg, err := config.LoadWithOverrides(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (o *GlobalOptions) newLogger() (*zap.Logger, error) {
	if !o.Debug {
		return zap.NewNop(), nil
	}
	return logger.New(logger.Options{Service: "predictctl", Debug: true, Console: true})
}

func openDatabase(cfg *config.Config) (*database.DB, func(), error) {
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
