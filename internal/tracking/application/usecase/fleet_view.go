package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/telemetry"
	in "fastfare/internal/tracking/application/ports/in"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"
	"fastfare/internal/tracking/positions"
)

const (
	defaultLookupTimeout     = 2 * time.Second
	defaultLookupConcurrency = 8
)

// FleetViewService builds the fleet view on demand. Nothing is cached.
type FleetViewService struct {
	store       *positions.Store
	parcels     out.ParcelStore
	timeout     time.Duration
	concurrency int
	now         func() time.Time
	metrics     *telemetry.Metrics
	log         *logger.Logger
}

var _ in.FleetViewUseCase = (*FleetViewService)(nil)

// NewFleetViewService wires the aggregator. A nil parcels store yields a
// view with no parcels; non-positive limits fall back to defaults.
func NewFleetViewService(
	store *positions.Store,
	parcels out.ParcelStore,
	timeout time.Duration,
	concurrency int,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) *FleetViewService {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if concurrency <= 0 {
		concurrency = defaultLookupConcurrency
	}
	return &FleetViewService{
		store:       store,
		parcels:     parcels,
		timeout:     timeout,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
		metrics:     metrics,
		log:         log,
	}
}

// Execute lists every known driver with its assigned parcels, plus the
// active parcels that no known driver carries. A failed lookup leaves that
// driver with an empty list; other drivers are unaffected.
func (s *FleetViewService) Execute(ctx context.Context) domain.FleetView {
	start := time.Now()
	drivers := s.store.ListAll()

	assigned := make([][]domain.Parcel, len(drivers))
	var active []domain.Parcel

	if s.parcels != nil {
		var g errgroup.Group
		g.SetLimit(s.concurrency)

		g.Go(func() error {
			active = s.lookup(ctx, "", func(c context.Context) ([]domain.Parcel, error) {
				return s.parcels.ActiveParcels(c)
			})
			return nil
		})
		for i, d := range drivers {
			g.Go(func() error {
				assigned[i] = s.lookup(ctx, d.DriverID, func(c context.Context) ([]domain.Parcel, error) {
					return s.parcels.AssignedParcels(c, d.DriverID)
				})
				return nil
			})
		}
		_ = g.Wait()
	}

	known := make(map[string]struct{}, len(drivers))
	view := domain.FleetView{
		Fleet:             make([]domain.FleetEntry, 0, len(drivers)),
		UnassignedParcels: []domain.Parcel{},
		GeneratedAt:       s.now(),
	}

	for i, d := range drivers {
		known[d.DriverID] = struct{}{}
		parcels := assigned[i]
		if parcels == nil {
			parcels = []domain.Parcel{}
		}
		view.Fleet = append(view.Fleet, domain.FleetEntry{
			DriverID:   d.DriverID,
			DriverName: d.DriverName,
			Position: domain.FleetPosition{
				Latitude:    d.Latitude,
				Longitude:   d.Longitude,
				LastUpdated: d.LastUpdated,
			},
			Online:          d.Online,
			OfflineSince:    d.OfflineSince,
			AssignedParcels: parcels,
		})
		view.TotalParcels += len(parcels)
	}

	for _, p := range active {
		if _, ok := known[p.AssignedDriverID]; p.AssignedDriverID == "" || !ok {
			view.UnassignedParcels = append(view.UnassignedParcels, p)
		}
	}
	view.TotalDrivers = len(view.Fleet)
	view.TotalParcels += len(view.UnassignedParcels)

	s.metrics.FleetViewDuration(ctx, time.Since(start))
	return view
}

func (s *FleetViewService) lookup(
	ctx context.Context,
	driverID string,
	fn func(context.Context) ([]domain.Parcel, error),
) []domain.Parcel {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parcels, err := fn(cctx)
	if err != nil {
		action := "fleet_parcel_lookup_failed"
		if driverID == "" {
			action = "fleet_active_parcels_failed"
		}
		s.log.Warn(logger.Entry{
			Action:   action,
			Message:  err.Error(),
			DriverID: driverID,
			Error:    &logger.ErrObj{Msg: err.Error()},
		})
		return []domain.Parcel{}
	}
	if parcels == nil {
		return []domain.Parcel{}
	}
	return parcels
}
