package in

import (
	"context"
	"encoding/json"

	"fastfare/internal/tracking/domain"
	"fastfare/internal/tracking/hub"
)

// ConnectInput is the session metadata known at handshake time.
type ConnectInput struct {
	Role     domain.Role
	DriverID string
}

// TrackingStats backs the health endpoint.
type TrackingStats struct {
	Sessions int `json:"sessions"`
	Drivers  int `json:"drivers"`
}

// TrackingUseCase drives sessions, topic membership and position ingestion.
type TrackingUseCase interface {
	Connect(ctx context.Context, sub hub.Subscriber, input ConnectInput) domain.Session
	Declare(ctx context.Context, sessionID string, role domain.Role, driverID string) error
	JoinDashboard(ctx context.Context, sessionID string) error
	JoinTracking(ctx context.Context, sessionID, shipmentTrackingID string) error
	JoinDriverChannel(ctx context.Context, sessionID, driverID string) error
	Leave(ctx context.Context, sessionID string, topic domain.Topic) error

	// ReportPosition accepts a report and fans it out. It returns false
	// when the report was dropped for a missing driver id.
	ReportPosition(ctx context.Context, report domain.PositionReport) (domain.DriverPosition, bool)
	// DriverStatus relays payload verbatim to every open session.
	DriverStatus(ctx context.Context, sessionID string, payload json.RawMessage) int
	Disconnect(ctx context.Context, sessionID string)

	ListPositions(ctx context.Context) []domain.DriverPosition
	GetPosition(ctx context.Context, driverID string) (domain.DriverPosition, error)
	Stats() TrackingStats
}
