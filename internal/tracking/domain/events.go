package domain

import "encoding/json"

// Client -> server events.
const (
	EventJoinDashboard     = "join-dashboard"
	EventJoinTracking      = "join-tracking"
	EventJoinDriverChannel = "join-driver-channel"
	EventLeave             = "leave"
	EventReportPosition    = "report-position"
	EventDriverStatus      = "driver-status"
)

// Server -> client events.
const (
	EventAllDriverPositions = "all-driver-positions"
	// EventPositionUpdate is used for Global topic delivery.
	EventPositionUpdate = "position-update"
	// EventLocationUpdate is used for Driver and Shipment topic delivery.
	EventLocationUpdate     = "location-update"
	EventDriverStatusUpdate = "driver-status-update"
	EventError              = "error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent marshals data into an envelope frame.
func EncodeEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}
