package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReportPayload is the report-position body shared by the WebSocket, HTTP
// and broker ingestion paths. latitude/longitude are accepted as aliases
// of lat/lng.
type ReportPayload struct {
	DriverID           string    `json:"driverId"`
	DriverName         string    `json:"driverName,omitempty"`
	Lat                *float64  `json:"lat,omitempty"`
	Lng                *float64  `json:"lng,omitempty"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
	Timestamp          *FlexTime `json:"timestamp,omitempty"`
	ShipmentTrackingID string    `json:"shipmentTrackingId,omitempty"`
}

// DecodeReport parses a report body. A missing driverId is not an error
// here; the store drops such reports. Missing coordinates are.
func DecodeReport(data []byte, connectionID string) (PositionReport, error) {
	var p ReportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PositionReport{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.ToReport(connectionID)
}

// ReportDriverID extracts a trimmed driverId from a report body that may
// not decode as a whole. It returns "" when there is none.
func ReportDriverID(data []byte) string {
	var peek struct {
		DriverID json.RawMessage `json:"driverId"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(peek.DriverID, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

func (p ReportPayload) ToReport(connectionID string) (PositionReport, error) {
	lat := firstFloat(p.Lat, p.Latitude)
	lng := firstFloat(p.Lng, p.Longitude)
	if lat == nil || lng == nil {
		return PositionReport{}, fmt.Errorf("%w: lat and lng are required", ErrInvalidPayload)
	}

	r := PositionReport{
		DriverID:           strings.TrimSpace(p.DriverID),
		DriverName:         p.DriverName,
		Latitude:           *lat,
		Longitude:          *lng,
		ShipmentTrackingID: strings.TrimSpace(p.ShipmentTrackingID),
		ConnectionID:       connectionID,
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		t := p.Timestamp.Time
		r.Timestamp = &t
	}
	return r, nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// FlexTime decodes an RFC3339 string or a number of epoch milliseconds.
// Anything else leaves it zero, so the report falls back to receive time.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed.UTC()
		}
		return nil
	}

	if ms, err := strconv.ParseFloat(string(b), 64); err == nil {
		t.Time = time.UnixMilli(int64(ms)).UTC()
	}
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
