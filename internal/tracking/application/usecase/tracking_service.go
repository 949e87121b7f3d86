package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/telemetry"
	in "fastfare/internal/tracking/application/ports/in"
	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"
	"fastfare/internal/tracking/hub"
	"fastfare/internal/tracking/positions"
)

// driverStripes bounds the number of per-driver ordering locks.
const driverStripes = 64

// TrackingService owns the ingest and fan-out path: store upsert, topic
// routing, broker mirroring and session lifecycle.
type TrackingService struct {
	store   *positions.Store
	hub     *hub.Hub
	mirror  out.PositionMirror
	metrics *telemetry.Metrics
	log     *logger.Logger

	// drivers serialises store write and fan-out per driver so subscribers
	// see one driver's updates in store order. Sends never block.
	drivers [driverStripes]sync.Mutex
}

var _ in.TrackingUseCase = (*TrackingService)(nil)

// NewTrackingService wires the service. mirror and metrics may be nil.
func NewTrackingService(
	store *positions.Store,
	h *hub.Hub,
	mirror out.PositionMirror,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) *TrackingService {
	return &TrackingService{
		store:   store,
		hub:     h,
		mirror:  mirror,
		metrics: metrics,
		log:     log,
	}
}

func (s *TrackingService) Connect(ctx context.Context, sub hub.Subscriber, input in.ConnectInput) domain.Session {
	sess := s.hub.Open(sub, input.Role, input.DriverID)
	s.metrics.SessionOpened(ctx)
	return sess
}

func (s *TrackingService) Declare(ctx context.Context, sessionID string, role domain.Role, driverID string) error {
	return s.hub.Declare(sessionID, role, driverID)
}

// JoinDashboard subscribes the session to the global topic. The session
// receives the all-driver-positions snapshot before any live update.
func (s *TrackingService) JoinDashboard(ctx context.Context, sessionID string) error {
	s.declareSubscriber(sessionID)
	_, err := s.hub.Join(sessionID, domain.GlobalTopic(), s.snapshotFrame)
	return err
}

func (s *TrackingService) JoinTracking(ctx context.Context, sessionID, shipmentTrackingID string) error {
	id := strings.TrimSpace(shipmentTrackingID)
	if id == "" {
		return fmt.Errorf("%w: shipment tracking id is required", domain.ErrInvalidTopic)
	}
	s.declareSubscriber(sessionID)
	_, err := s.hub.Join(sessionID, domain.ShipmentTopic(id), nil)
	return err
}

func (s *TrackingService) JoinDriverChannel(ctx context.Context, sessionID, driverID string) error {
	id := strings.TrimSpace(driverID)
	if id == "" {
		return fmt.Errorf("%w: driver id is required", domain.ErrInvalidTopic)
	}
	s.declareSubscriber(sessionID)
	_, err := s.hub.Join(sessionID, domain.DriverTopic(id), nil)
	return err
}

func (s *TrackingService) Leave(ctx context.Context, sessionID string, topic domain.Topic) error {
	return s.hub.Leave(sessionID, topic)
}

func (s *TrackingService) ReportPosition(ctx context.Context, report domain.PositionReport) (domain.DriverPosition, bool) {
	report.DriverID = strings.TrimSpace(report.DriverID)
	if report.DriverID == "" {
		s.metrics.ReportDropped(ctx, "empty_driver_id")
		s.log.Debug(logger.Entry{
			Action:  "position_report_dropped",
			Message: domain.ErrEmptyDriverID.Error(),
			Additional: map[string]any{
				"connection_id": report.ConnectionID,
			},
		})
		return domain.DriverPosition{}, false
	}

	source := "ingest"
	if report.ConnectionID != "" {
		source = "ws"
	}

	pos, mirrorErr := s.accept(ctx, report)
	s.metrics.ReportAccepted(ctx, source)

	if mirrorErr != nil {
		s.log.Warn(logger.Entry{
			Action:   "position_mirror_failed",
			Message:  mirrorErr.Error(),
			DriverID: pos.DriverID,
			Error:    &logger.ErrObj{Msg: mirrorErr.Error()},
		})
	}

	s.log.Debug(logger.Entry{
		Action:   "position_reported",
		Message:  "driver position updated",
		DriverID: pos.DriverID,
		Additional: map[string]any{
			"latitude":    pos.Latitude,
			"longitude":   pos.Longitude,
			"online":      pos.Online,
			"shipment_id": pos.ShipmentTrackingID,
			"source":      source,
		},
	})
	return pos, true
}

// accept stores the report and publishes the result while holding the
// driver's lock. report.DriverID must be non-empty.
func (s *TrackingService) accept(ctx context.Context, report domain.PositionReport) (domain.DriverPosition, error) {
	mu := s.driverLock(report.DriverID)
	mu.Lock()
	defer mu.Unlock()

	pos, _ := s.store.Upsert(report)
	if report.ConnectionID != "" {
		if sess, found := s.hub.Session(report.ConnectionID); found && sess.Role != domain.RoleDriver {
			_ = s.hub.Declare(report.ConnectionID, domain.RoleDriver, pos.DriverID)
		}
	}

	s.fanOut(ctx, pos)

	if s.mirror == nil {
		return pos, nil
	}
	return pos, s.mirror.PublishPosition(ctx, pos)
}

func (s *TrackingService) driverLock(driverID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(driverID))
	return &s.drivers[h.Sum32()%driverStripes]
}

// DriverStatus relays payload as driver-status-update to every open
// session and returns the number of deliveries.
func (s *TrackingService) DriverStatus(ctx context.Context, sessionID string, payload json.RawMessage) int {
	frame, err := json.Marshal(domain.Envelope{Type: domain.EventDriverStatusUpdate, Data: payload})
	if err != nil {
		s.log.Warn(logger.Entry{
			Action:  "driver_status_encode_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return 0
	}
	n := s.hub.Broadcast(frame)
	s.metrics.Delivered(ctx, "broadcast", n)

	driverID := statusDriverID(payload)
	if driverID == "" {
		if sess, ok := s.hub.Session(sessionID); ok {
			driverID = sess.DeclaredDriverID
		}
	}
	if s.mirror != nil {
		if err := s.mirror.PublishDriverStatus(ctx, driverID, payload); err != nil {
			s.log.Warn(logger.Entry{
				Action:   "driver_status_mirror_failed",
				Message:  err.Error(),
				DriverID: driverID,
				Error:    &logger.ErrObj{Msg: err.Error()},
			})
		}
	}
	return n
}

// Disconnect closes the session and flips the drivers it was authoritative
// for to offline. Dashboards see the transition as a regular update.
func (s *TrackingService) Disconnect(ctx context.Context, sessionID string) {
	if _, ok := s.hub.Close(sessionID); !ok {
		return
	}
	s.metrics.SessionClosed(ctx)

	for _, p := range s.store.MarkOffline(sessionID) {
		s.log.Info(logger.Entry{
			Action:   "driver_offline",
			Message:  "authoritative connection closed",
			DriverID: p.DriverID,
			Additional: map[string]any{
				"connection_id": sessionID,
			},
		})
		s.publishOffline(ctx, p.DriverID)
	}
}

// publishOffline fans out the driver's current record unless a report
// brought the driver back online after MarkOffline. That report has already
// been published.
func (s *TrackingService) publishOffline(ctx context.Context, driverID string) {
	mu := s.driverLock(driverID)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := s.store.Get(driverID)
	if !ok || cur.Online {
		return
	}
	s.fanOut(ctx, cur)
}

func (s *TrackingService) ListPositions(ctx context.Context) []domain.DriverPosition {
	return s.store.ListAll()
}

func (s *TrackingService) GetPosition(ctx context.Context, driverID string) (domain.DriverPosition, error) {
	p, ok := s.store.Get(driverID)
	if !ok {
		return domain.DriverPosition{}, domain.ErrDriverNotFound
	}
	return p, nil
}

func (s *TrackingService) Stats() in.TrackingStats {
	return in.TrackingStats{Sessions: s.hub.Sessions(), Drivers: s.store.Len()}
}

// fanOut publishes pos to the global topic, the driver's channel and, when
// set, the shipment topic.
func (s *TrackingService) fanOut(ctx context.Context, pos domain.DriverPosition) {
	global, err := domain.EncodeEvent(domain.EventPositionUpdate, pos)
	if err != nil {
		s.log.Error(logger.Entry{
			Action:   "position_encode_failed",
			Message:  err.Error(),
			DriverID: pos.DriverID,
			Error:    &logger.ErrObj{Msg: err.Error()},
		})
		return
	}
	s.metrics.Delivered(ctx, domain.TopicGlobal.String(), s.hub.Publish(domain.GlobalTopic(), global))

	loc, err := domain.EncodeEvent(domain.EventLocationUpdate, pos)
	if err != nil {
		return
	}
	s.metrics.Delivered(ctx, domain.TopicDriver.String(), s.hub.Publish(domain.DriverTopic(pos.DriverID), loc))
	if pos.ShipmentTrackingID != "" {
		s.metrics.Delivered(ctx, domain.TopicShipment.String(), s.hub.Publish(domain.ShipmentTopic(pos.ShipmentTrackingID), loc))
	}
}

func (s *TrackingService) snapshotFrame() []byte {
	frame, err := domain.EncodeEvent(domain.EventAllDriverPositions, s.store.ListAll())
	if err != nil {
		s.log.Error(logger.Entry{
			Action:  "snapshot_encode_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		frame, _ = domain.EncodeEvent(domain.EventAllDriverPositions, []domain.DriverPosition{})
	}
	return frame
}

// declareSubscriber marks a session with no role yet as a subscriber.
func (s *TrackingService) declareSubscriber(sessionID string) {
	if sess, ok := s.hub.Session(sessionID); ok && sess.Role == domain.RoleUnknown {
		_ = s.hub.Declare(sessionID, domain.RoleSubscriber, "")
	}
}

func statusDriverID(payload json.RawMessage) string {
	var v struct {
		DriverID string `json:"driverId"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return ""
	}
	return v.DriverID
}
