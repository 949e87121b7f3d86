package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/bootstrap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.NewLoggerWithOptions("tracking-service", cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := bootstrap.Run(ctx, cfg, log); err != nil {
		log.Fatal(logger.Entry{
			Action:  "tracking_service_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
}
