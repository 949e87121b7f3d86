package domain

import "time"

// Parcel is an assignment record owned by the external parcel store.
type Parcel struct {
	ID               string    `json:"id"`
	TrackingID       string    `json:"trackingId"`
	Status           string    `json:"status"`
	AssignedDriverID string    `json:"assignedDriverId,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

type FleetPosition struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type FleetEntry struct {
	DriverID        string        `json:"driverId"`
	DriverName      string        `json:"driverName,omitempty"`
	Position        FleetPosition `json:"position"`
	Online          bool          `json:"online"`
	OfflineSince    *time.Time    `json:"offlineSince,omitempty"`
	AssignedParcels []Parcel      `json:"assignedParcels"`
}

// FleetView is computed per request and never stored.
type FleetView struct {
	Fleet             []FleetEntry `json:"fleet"`
	UnassignedParcels []Parcel     `json:"unassignedParcels"`
	TotalDrivers      int          `json:"totalDrivers"`
	TotalParcels      int          `json:"totalParcels"`
	GeneratedAt       time.Time    `json:"generatedAt"`
}
