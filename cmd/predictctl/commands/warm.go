package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/benvon/checkin-insights/internal/database"
	"github.com/benvon/checkin-insights/internal/queue"
	"github.com/benvon/checkin-insights/internal/services/prediction"
	"github.com/benvon/checkin-insights/internal/workers"
)

// NewWarmCmd creates the warm command
func NewWarmCmd(opts *GlobalOptions) *cobra.Command {
	var (
		userID     string
		all        bool
		activeDays int
		windowDays int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Enqueue cache warming jobs",
		Long:  "Enqueue a warm_predictions job for one user, or for every user with a recent check-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == !all {
				return errors.New("exactly one of --user or --all is required")
			}
			var id uuid.UUID
			if userID != "" {
				var err error
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("--user must be a UUID: %w", err)
				}
			}
			if all && activeDays <= 0 {
				return errors.New("--active-days must be positive")
			}
			if cmd.Flags().Changed("window-days") && (windowDays < 1 || windowDays > prediction.MaxWindowDays) {
				return fmt.Errorf("--window-days must be between 1 and %d", prediction.MaxWindowDays)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireQueue(); err != nil {
				return err
			}
			log, err := opts.newLogger()
			if err != nil {
				return err
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, log)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := jobQueue.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()

			var users database.ActiveUserLister
			if all {
				db, closeDB, err := openDatabase(cfg)
				if err != nil {
					return err
				}
				defer closeDB()
				users = database.NewCheckInRepository(db)
			}

			scheduler := workers.NewScheduler(jobQueue, users, log)
			scheduler.SetMaxRetries(cfg.WarmMaxRetries)

			if !all {
				if err := scheduler.EnqueueUser(cmd.Context(), id, windowDays); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued warm job for user %s\n", id)
				return nil
			}

			n, err := scheduler.ScheduleWarmJobs(cmd.Context(), activeDays, windowDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d warm job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Warm a single user")
	cmd.Flags().BoolVar(&all, "all", false, "Warm every user with a check-in in the last --active-days")
	cmd.Flags().IntVar(&activeDays, "active-days", 7, "Activity horizon for --all")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "Recent window in days for the warmed predictions (unset uses the service default)")

	return cmd
}
