package simulator

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/auth"
	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/ws"
	"fastfare/internal/tracking/adapters/in/in_ws"
	"fastfare/internal/tracking/application/usecase"
	"fastfare/internal/tracking/hub"
	"fastfare/internal/tracking/positions"
)

func TestCouriersStartNearCenter(t *testing.T) {
	sim := NewSimulator(Config{Drivers: 5, CenterLat: 12.97, CenterLng: 77.59, RadiusKm: 2, WithShipment: true}, nil, logger.Nop())
	require.Len(t, sim.Couriers, 5)

	seen := map[string]bool{}
	for _, c := range sim.Couriers {
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
		assert.NotEmpty(t, c.Name)
		assert.True(t, strings.HasPrefix(c.TrackingID, "AWB"))
		assert.InDelta(t, 12.97, c.Lat, 0.05)
		assert.InDelta(t, 77.59, c.Lng, 0.05)
	}
}

func TestStepMovesAboutTenMetres(t *testing.T) {
	sim := NewSimulator(Config{Drivers: 1, CenterLat: 0, CenterLng: 0}, nil, logger.Nop())
	c := sim.Couriers[0]
	lat, lng := c.Lat, c.Lng

	sim.step(c)

	km := math.Hypot(c.Lat-lat, c.Lng-lng) * 111.0
	assert.InDelta(t, 0.01, km, 0.001)
}

func TestRunReportsToTrackingService(t *testing.T) {
	store := positions.NewStore()
	svc := usecase.NewTrackingService(store, hub.New(logger.Nop()), nil, nil, logger.Nop())
	jwtSvc := auth.NewJWTService(config.JWTConfig{Secret: "s3cret", ExpiryMinutes: 5})
	srv := ws.NewServer(config.WSConfig{
		Path:           "/ws",
		SendBuffer:     32,
		MaxMessageSize: 8192,
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
	}, jwtSvc.ExtractUserID, in_ws.NewHandler(svc, logger.Nop()), logger.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	token := func(driverID string) (string, error) {
		return jwtSvc.GenerateToken(driverID, driverID+"@fastfare.local", auth.RoleDriver)
	}
	sim := NewSimulator(Config{
		URL:       "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Drivers:   3,
		Interval:  20 * time.Millisecond,
		Duration:  300 * time.Millisecond,
		CenterLat: 12.97,
		CenterLng: 77.59,
	}, token, logger.Nop())

	require.NoError(t, sim.Run(context.Background()))
	assert.GreaterOrEqual(t, sim.Sent(), int64(3))

	require.Eventually(t, func() bool { return store.Len() == 3 }, 2*time.Second, 10*time.Millisecond)
	for _, c := range sim.Couriers {
		pos, ok := store.Get(c.ID)
		require.True(t, ok, c.ID)
		assert.Equal(t, c.Name, pos.DriverName)
	}
}

func TestRunFailsOnBadURL(t *testing.T) {
	sim := NewSimulator(Config{URL: "ws://127.0.0.1:1/ws", Drivers: 1, Duration: time.Second}, nil, logger.Nop())
	assert.Error(t, sim.Run(context.Background()))
}
