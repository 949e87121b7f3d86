package domain

import "time"

// DriverPosition is the latest known state of one driver.
type DriverPosition struct {
	DriverID           string     `json:"driverId"`
	DriverName         string     `json:"driverName,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	ShipmentTrackingID string     `json:"shipmentTrackingId,omitempty"`
	LastUpdated        time.Time  `json:"lastUpdated"`
	ConnectionID       string     `json:"-"`
	Online             bool       `json:"online"`
	OfflineSince       *time.Time `json:"offlineSince,omitempty"`
}

// PositionReport is one inbound report. Timestamp is nil when the client
// did not send one; ConnectionID is empty for reports that did not arrive
// over a live connection (HTTP fallback, broker ingestion).
type PositionReport struct {
	DriverID           string
	DriverName         string
	Latitude           float64
	Longitude          float64
	Timestamp          *time.Time
	ShipmentTrackingID string
	ConnectionID       string
}
