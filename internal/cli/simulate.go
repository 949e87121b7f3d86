package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fastfare/internal/shared/auth"
	"fastfare/internal/shared/logger"
	"fastfare/internal/simulator"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive fake couriers against a running tracking service",
		Long:  `simulate connects N fake couriers over WebSocket and reports a random walk around a city centre. Every flag can also be set as SIM_<FLAG>, e.g. SIM_DRIVERS=50.`,
		RunE:  runSimulate,
	}

	cmd.Flags().String("url", "", "tracking WebSocket URL (default ws://localhost:<tracking port><ws path>)")
	cmd.Flags().Int("drivers", 10, "number of couriers")
	cmd.Flags().Duration("interval", 0, "delay between reports per courier (default 1s)")
	cmd.Flags().Duration("duration", 0, "stop after this long; zero runs until interrupted")
	cmd.Flags().Float64("lat", 12.9716, "city centre latitude")
	cmd.Flags().Float64("lng", 77.5946, "city centre longitude")
	cmd.Flags().Float64("radius-km", 5, "spawn radius around the centre")
	cmd.Flags().Bool("shipments", true, "attach a shipment tracking id to every courier")
	cmd.Flags().Bool("sign-tokens", false, "send a DRIVER token signed with jwt.secret")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.SetEnvPrefix("SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	target := v.GetString("url")
	if target == "" {
		target = fmt.Sprintf("ws://localhost:%d%s", cfg.Services.TrackingServicePort, cfg.WebSocket.Path)
	}

	var token simulator.TokenFunc
	if v.GetBool("sign-tokens") {
		jwtService := auth.NewJWTService(cfg.JWT)
		token = func(driverID string) (string, error) {
			return jwtService.GenerateToken(driverID, driverID+"@fastfare.local", auth.RoleDriver)
		}
	}

	log := logger.NewWithWriters("simulator", logger.ParseLevel(cfg.Log.Level), os.Stdout, os.Stderr)
	sim := simulator.NewSimulator(simulator.Config{
		URL:          target,
		Drivers:      v.GetInt("drivers"),
		Interval:     v.GetDuration("interval"),
		Duration:     v.GetDuration("duration"),
		CenterLat:    v.GetFloat64("lat"),
		CenterLng:    v.GetFloat64("lng"),
		RadiusKm:     v.GetFloat64("radius-km"),
		WithShipment: v.GetBool("shipments"),
	}, token, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(logger.Entry{
		Action:     "simulation_started",
		Message:    fmt.Sprintf("%d couriers", len(sim.Couriers)),
		Additional: map[string]any{"url": target},
	})
	return sim.Run(ctx)
}
