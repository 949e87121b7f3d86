package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/logger"
	"fastfare/internal/tracking/domain"
	"fastfare/internal/tracking/positions"
)

func seedDrivers(t *testing.T) *positions.Store {
	t.Helper()
	store := positions.NewStore()
	_, ok := store.Upsert(domain.PositionReport{DriverID: "D1", DriverName: "Dee One", Latitude: 1, Longitude: 1, ConnectionID: "c1"})
	require.True(t, ok)
	_, ok = store.Upsert(domain.PositionReport{DriverID: "D2", Latitude: 2, Longitude: 2, ConnectionID: "c2"})
	require.True(t, ok)
	require.Len(t, store.MarkOffline("c2"), 1)
	return store
}

func entryByID(view domain.FleetView, id string) (domain.FleetEntry, bool) {
	for _, e := range view.Fleet {
		if e.DriverID == id {
			return e, true
		}
	}
	return domain.FleetEntry{}, false
}

func TestFleetViewJoinsPositionsAndParcels(t *testing.T) {
	store := seedDrivers(t)
	p1 := domain.Parcel{ID: "P1", TrackingID: "AWB1", Status: "IN_TRANSIT", AssignedDriverID: "D1"}
	p2 := domain.Parcel{ID: "P2", TrackingID: "AWB2", Status: "IN_TRANSIT", AssignedDriverID: "D1"}
	p3 := domain.Parcel{ID: "P3", TrackingID: "AWB3", Status: "PENDING"}
	parcels := &fakeParcels{
		byDriver: map[string][]domain.Parcel{"D1": {p1, p2}},
		active:   []domain.Parcel{p1, p2, p3},
	}

	view := NewFleetViewService(store, parcels, time.Second, 4, nil, logger.Nop()).Execute(context.Background())

	assert.Equal(t, 2, view.TotalDrivers)
	assert.Equal(t, 3, view.TotalParcels)
	assert.Equal(t, []domain.Parcel{p3}, view.UnassignedParcels)

	d1, ok := entryByID(view, "D1")
	require.True(t, ok)
	assert.True(t, d1.Online)
	assert.Equal(t, "Dee One", d1.DriverName)
	assert.Len(t, d1.AssignedParcels, 2)

	d2, ok := entryByID(view, "D2")
	require.True(t, ok)
	assert.False(t, d2.Online)
	assert.NotNil(t, d2.OfflineSince)
	assert.NotNil(t, d2.AssignedParcels)
	assert.Empty(t, d2.AssignedParcels)
}

func TestFleetViewDegradesPerDriver(t *testing.T) {
	store := seedDrivers(t)
	parcels := &fakeParcels{
		byDriver: map[string][]domain.Parcel{
			"D1": {{ID: "P1", AssignedDriverID: "D1"}},
			"D2": {{ID: "P2", AssignedDriverID: "D2"}},
		},
		failFor: map[string]bool{"D1": true},
	}

	view := NewFleetViewService(store, parcels, time.Second, 1, nil, logger.Nop()).Execute(context.Background())

	require.Equal(t, 2, view.TotalDrivers)
	d1, _ := entryByID(view, "D1")
	d2, _ := entryByID(view, "D2")
	assert.NotNil(t, d1.AssignedParcels)
	assert.Empty(t, d1.AssignedParcels)
	assert.Len(t, d2.AssignedParcels, 1)
	assert.Equal(t, 1, view.TotalParcels)
}

func TestFleetViewParcelToUnknownDriverIsUnassigned(t *testing.T) {
	store := seedDrivers(t)
	ghost := domain.Parcel{ID: "P9", AssignedDriverID: "D404"}
	parcels := &fakeParcels{active: []domain.Parcel{ghost}}

	view := NewFleetViewService(store, parcels, time.Second, 2, nil, logger.Nop()).Execute(context.Background())

	assert.Equal(t, []domain.Parcel{ghost}, view.UnassignedParcels)
	assert.Equal(t, 1, view.TotalParcels)
}

func TestFleetViewLookupTimeout(t *testing.T) {
	store := seedDrivers(t)
	parcels := &fakeParcels{
		byDriver: map[string][]domain.Parcel{"D1": {{ID: "P1"}}},
		delay:    time.Second,
		failAll:  true,
	}

	start := time.Now()
	view := NewFleetViewService(store, parcels, 20*time.Millisecond, 2, nil, logger.Nop()).Execute(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2, view.TotalDrivers)
	assert.Zero(t, view.TotalParcels)
	assert.Empty(t, view.UnassignedParcels)
}

func TestFleetViewWithoutParcelStore(t *testing.T) {
	store := seedDrivers(t)

	view := NewFleetViewService(store, nil, 0, 0, nil, logger.Nop()).Execute(context.Background())

	assert.Equal(t, 2, view.TotalDrivers)
	assert.NotNil(t, view.UnassignedParcels)
	for _, e := range view.Fleet {
		assert.NotNil(t, e.AssignedParcels)
	}
}
