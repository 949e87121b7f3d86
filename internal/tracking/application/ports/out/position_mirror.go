package out

import (
	"context"
	"encoding/json"
	"time"

	"fastfare/internal/tracking/domain"
)

// PositionMirror copies accepted positions and driver status frames to a
// message broker. Errors are reported to the caller and never retried.
type PositionMirror interface {
	PublishPosition(ctx context.Context, pos domain.DriverPosition) error
	PublishDriverStatus(ctx context.Context, driverID string, payload json.RawMessage) error
}

// Broker payloads written by every mirror backend.
type PositionMessage struct {
	Event     string                `json:"event"` // position.updated
	Position  domain.DriverPosition `json:"position"`
	EmittedAt time.Time             `json:"emittedAt"`
}

type DriverStatusMessage struct {
	Event     string          `json:"event"` // driver.status
	DriverID  string          `json:"driverId,omitempty"`
	Status    json.RawMessage `json:"status"`
	EmittedAt time.Time       `json:"emittedAt"`
}

const (
	MirrorEventPosition     = "position.updated"
	MirrorEventDriverStatus = "driver.status"
)
