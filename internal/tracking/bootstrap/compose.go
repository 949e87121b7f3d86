package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fastfare/internal/shared/auth"
	"fastfare/internal/shared/config"
	db_conn "fastfare/internal/shared/db"
	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/mq"
	"fastfare/internal/shared/telemetry"
	"fastfare/internal/shared/ws"
	"fastfare/internal/tracking/adapters/in/in_amqp"
	"fastfare/internal/tracking/adapters/in/in_ws"
	"fastfare/internal/tracking/adapters/in/transport"
	messaging "fastfare/internal/tracking/adapters/out/amqp"
	"fastfare/internal/tracking/adapters/out/file"
	"fastfare/internal/tracking/adapters/out/kafka"
	"fastfare/internal/tracking/adapters/out/mirror"
	"fastfare/internal/tracking/adapters/out/repo"
	"fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/application/usecase"
	"fastfare/internal/tracking/hub"
	"fastfare/internal/tracking/positions"
)

const (
	serviceName     = "tracking-service"
	shutdownTimeout = 10 * time.Second
)

// Run starts the tracking service and blocks until ctx is cancelled or the
// HTTP server fails.
func Run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	log.Info(logger.Entry{Action: "tracking_service_starting", Message: "initializing tracking service"})

	// 1. Telemetry
	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	provider.SetGlobal()
	defer closeWith(provider.Shutdown, "telemetry_shutdown_failed", log)

	metrics, err := telemetry.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// 2. Parcel store
	parcels, closeParcels, err := newParcelStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeParcels()

	// 3. Broker connection, only when something uses it
	var mqConn *mq.RabbitMQ
	if cfg.Tracking.MirrorBackend == "amqp" || cfg.Tracking.ConsumeReports {
		mqConn, err = mq.NewRabbitMQ(ctx, cfg.RabbitMQ, log)
		if err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
		defer mqConn.Close()

		if err := mq.SetupTopology(mqConn, log); err != nil {
			return fmt.Errorf("rabbitmq topology: %w", err)
		}
	}

	// 4. Position mirror
	var positionMirror out.PositionMirror
	sink, closeSink, err := newMirrorSink(cfg, mqConn, log)
	if err != nil {
		return err
	}
	if sink != nil {
		async := mirror.NewAsync(sink, cfg.Tracking.MirrorBuffer, log)
		positionMirror = async
		defer func() {
			closeWith(async.Close, "mirror_close_failed", log)
			closeSink()
		}()
	}

	// 5. Core
	store := positions.NewStore()
	sessions := hub.New(log, hub.WithPruneHook(func(sessionID string, err error) {
		metrics.DeliveryFailed(context.Background())
	}))
	trackingService := usecase.NewTrackingService(store, sessions, positionMirror, metrics, log)
	fleetService := usecase.NewFleetViewService(
		store,
		parcels,
		cfg.Tracking.ParcelLookupTimeout,
		cfg.Tracking.ParcelLookupConcurrency,
		metrics,
		log,
	)

	// 6. Broker ingestion
	if cfg.Tracking.ConsumeReports {
		consumer := in_amqp.NewLocationReportConsumer(mqConn, trackingService, log)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	// 7. Transports
	jwtService := auth.NewJWTService(cfg.JWT)
	wsServer := ws.NewServer(cfg.WebSocket, jwtService.ExtractUserID, in_ws.NewHandler(trackingService, log), log)

	apiAuth := transport.NoAuth
	if cfg.JWT.Required {
		apiAuth = transport.AuthMiddleware(jwtService, log)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.WebSocket.Path, wsServer)
	transport.NewHTTPHandler(trackingService, fleetService, log).RegisterRoutes(mux, apiAuth)

	handler := transport.RequestIDMiddleware(transport.LoggingMiddleware(log)(mux))
	server := transport.NewHTTPServer(handler, cfg.Services.TrackingServicePort, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	log.Info(logger.Entry{
		Action:  "tracking_service_started",
		Message: "tracking service ready",
		Additional: map[string]any{
			"addr":           server.Addr(),
			"ws_path":        cfg.WebSocket.Path,
			"parcel_source":  cfg.Tracking.ParcelSource,
			"mirror_backend": cfg.Tracking.MirrorBackend,
		},
	})

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// 8. Graceful shutdown: stop accepting, close sockets, then drain the mirror.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(logger.Entry{
			Action:  "http_shutdown_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error(logger.Entry{
			Action:  "ws_shutdown_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}

	log.Info(logger.Entry{Action: "tracking_service_stopped", Message: "tracking service stopped"})
	return nil
}

// newParcelStore picks the parcel source. The returned close func is never nil.
func newParcelStore(ctx context.Context, cfg config.Config, log *logger.Logger) (out.ParcelStore, func(), error) {
	switch cfg.Tracking.ParcelSource {
	case "postgres":
		pool, err := db_conn.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.Migrate {
			if err := db_conn.Migrate(ctx, pool, log); err != nil {
				db_conn.Close(pool, log)
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return repo.NewParcelPgRepository(pool), func() { db_conn.Close(pool, log) }, nil

	case "file":
		store, err := file.NewParcelFileStore(cfg.Tracking.ParcelFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info(logger.Entry{
			Action:  "parcel_file_loaded",
			Message: cfg.Tracking.ParcelFile,
		})
		return store, func() {}, nil

	default:
		log.Warn(logger.Entry{
			Action:  "parcel_source_disabled",
			Message: "fleet view will carry no parcels",
		})
		return nil, func() {}, nil
	}
}

// newMirrorSink builds the synchronous mirror backend. A nil sink means
// mirroring is off.
func newMirrorSink(cfg config.Config, mqConn *mq.RabbitMQ, log *logger.Logger) (out.PositionMirror, func(), error) {
	switch cfg.Tracking.MirrorBackend {
	case "amqp":
		return messaging.NewPositionPublisher(mqConn, log), func() {}, nil

	case "kafka":
		producer, err := kafka.NewPositionProducerFromConfig(cfg.Kafka, log)
		if err != nil {
			return nil, nil, err
		}
		return producer, func() {
			if err := producer.Close(); err != nil {
				log.Error(logger.Entry{
					Action:  "kafka_producer_close_failed",
					Message: err.Error(),
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
			}
		}, nil

	default:
		return nil, func() {}, nil
	}
}

func closeWith(fn func(context.Context) error, action string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(logger.Entry{
			Action:  action,
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
}
