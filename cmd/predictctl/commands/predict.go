package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/benvon/checkin-insights/internal/app"
	"github.com/benvon/checkin-insights/internal/database"
	"github.com/benvon/checkin-insights/internal/models"
	"github.com/benvon/checkin-insights/internal/services/prediction"
)

// NewPredictCmd creates the predict command
func NewPredictCmd(opts *GlobalOptions) *cobra.Command {
	var (
		userID        string
		types         string
		windowDays    int
		limitCheckIns int
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a prediction for one user",
		Long:  "Run the prediction pipeline for one user and print the response as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var window *int
			if cmd.Flags().Changed("window-days") {
				window = &windowDays
			}
			q, err := buildQuery(userID, types, window, limitCheckIns)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := opts.newLogger()
			if err != nil {
				return err
			}
			db, closeDB, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			engine, err := app.Build(cmd.Context(), cfg, database.NewCheckInRepository(db), log, nil)
			if err != nil {
				return err
			}
			defer engine.Close()

			resp, err := engine.Orchestrator.Generate(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("prediction failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&types, "types", "", "Comma-separated prediction types (default all)")
	cmd.Flags().IntVar(&windowDays, "window-days", prediction.DefaultWindowDays, "Recent window in days (1-30)")
	cmd.Flags().IntVar(&limitCheckIns, "limit-checkins", 0, "Also predict for up to N recent check-ins")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func buildQuery(userID, types string, windowDays *int, limitCheckIns int) (prediction.Query, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return prediction.Query{}, fmt.Errorf("--user must be a UUID: %w", err)
	}
	q := prediction.Query{UserID: id, LimitCheckIns: limitCheckIns}
	if windowDays != nil {
		if *windowDays < 1 || *windowDays > prediction.MaxWindowDays {
			return prediction.Query{}, fmt.Errorf("--window-days must be between 1 and %d", prediction.MaxWindowDays)
		}
		q.WindowDays = prediction.Days(*windowDays)
	}
	for _, raw := range strings.Split(types, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := models.ParsePredictionType(raw)
		if err != nil {
			return prediction.Query{}, err
		}
		q.Types = append(q.Types, t)
	}
	return q, nil
}
