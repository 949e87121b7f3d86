package in_amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/application/usecase"
	"fastfare/internal/tracking/hub"
	"fastfare/internal/tracking/positions"
)

func newConsumer() (*LocationReportConsumer, *positions.Store) {
	store := positions.NewStore()
	svc := usecase.NewTrackingService(store, hub.New(logger.Nop()), nil, nil, logger.Nop())
	return NewLocationReportConsumer(nil, svc, logger.Nop()), store
}

func TestHandleIngestsWithoutConnection(t *testing.T) {
	c, store := newConsumer()

	require.NoError(t, c.Handle(context.Background(), "driver.location.d1",
		[]byte(`{"driverId":"d1","lat":51.5,"lng":-0.12,"timestamp":"2026-03-01T09:30:00Z"}`)))

	p, ok := store.Get("d1")
	require.True(t, ok)
	assert.False(t, p.Online)
	assert.Empty(t, p.ConnectionID)
	assert.Equal(t, 51.5, p.Latitude)
}

func TestHandleFallsBackToRoutingKey(t *testing.T) {
	c, store := newConsumer()

	require.NoError(t, c.Handle(context.Background(), "driver.location.d7", []byte(`{"lat":1,"lng":2}`)))
	_, ok := store.Get("d7")
	assert.True(t, ok)

	require.NoError(t, c.Handle(context.Background(), "driver.location.#", []byte(`{"lat":1,"lng":2}`)))
	assert.Equal(t, 1, store.Len())
}

func TestHandleMalformed(t *testing.T) {
	c, store := newConsumer()

	err := c.Handle(context.Background(), "driver.location.d1", []byte(`not-json`))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Zero(t, store.Len())
}
