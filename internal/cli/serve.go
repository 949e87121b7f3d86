package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/bootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logger.NewLoggerWithOptions("tracking-service", cfg.Log.Level, cfg.Log.Dir)
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := bootstrap.Run(ctx, cfg, log); err != nil {
				log.Fatal(logger.Entry{
					Action:  "tracking_service_failed",
					Message: err.Error(),
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
			}
			return nil
		},
	}
}
