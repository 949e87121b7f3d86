// Package positions holds the latest known position of every driver seen by
// this process. Records are created on first report and never removed.
package positions

import (
	"sort"
	"sync"
	"time"

	"fastfare/internal/tracking/domain"
)

type Store struct {
	mu      sync.RWMutex
	drivers map[string]*domain.DriverPosition
	now     func() time.Time
}

type Option func(*Store)

// WithClock replaces the server receive-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		drivers: make(map[string]*domain.DriverPosition),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert replaces the record for r.DriverID with the report. Reports are
// ordered by arrival, so a report with an older client timestamp still
// overwrites a newer one. A report carrying a connection id makes that
// connection authoritative and marks the driver online. A report without
// one (HTTP fallback, broker) only moves the position: liveness stays with
// the previous record, and a driver first seen this way is offline.
// It returns false, and stores nothing, when DriverID is empty.
func (s *Store) Upsert(r domain.PositionReport) (domain.DriverPosition, bool) {
	if r.DriverID == "" {
		return domain.DriverPosition{}, false
	}

	ts := s.now()
	if r.Timestamp != nil && !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.drivers[r.DriverID]
	name := r.DriverName
	if known && name == "" {
		name = prev.DriverName
	}

	p := &domain.DriverPosition{
		DriverID:           r.DriverID,
		DriverName:         name,
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		ShipmentTrackingID: r.ShipmentTrackingID,
		LastUpdated:        ts,
		ConnectionID:       r.ConnectionID,
		Online:             true,
	}
	if r.ConnectionID == "" {
		p.Online = false
		if known {
			p.ConnectionID = prev.ConnectionID
			p.Online = prev.Online
			p.OfflineSince = prev.OfflineSince
		}
	}
	s.drivers[r.DriverID] = p
	return clone(p), true
}

// MarkOffline flips every online record whose authoritative connection is
// connectionID. Records that were since taken over by another connection are
// left alone. The returned slice holds copies of the records that changed.
func (s *Store) MarkOffline(connectionID string) []domain.DriverPosition {
	if connectionID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []domain.DriverPosition
	for _, p := range s.drivers {
		if p.ConnectionID != connectionID || !p.Online {
			continue
		}
		since := s.now()
		p.Online = false
		p.OfflineSince = &since
		changed = append(changed, clone(p))
	}
	return changed
}

// ListAll returns a copy of every record, sorted by driver id.
func (s *Store) ListAll() []domain.DriverPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DriverPosition, 0, len(s.drivers))
	for _, p := range s.drivers {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (s *Store) Get(driverID string) (domain.DriverPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.drivers[driverID]
	if !ok {
		return domain.DriverPosition{}, false
	}
	return clone(p), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drivers)
}

func clone(p *domain.DriverPosition) domain.DriverPosition {
	c := *p
	if p.OfflineSince != nil {
		t := *p.OfflineSince
		c.OfflineSince = &t
	}
	return c
}
