// Package file serves parcel assignments from a YAML fixture. It stands in
// for the shipment system in local runs and demos.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"

	"gopkg.in/yaml.v3"
)

type parcelRecord struct {
	ID               string    `yaml:"id"`
	TrackingID       string    `yaml:"tracking_id"`
	Status           string    `yaml:"status"`
	AssignedDriverID string    `yaml:"assigned_driver_id"`
	UpdatedAt        time.Time `yaml:"updated_at"`
}

type parcelFile struct {
	Parcels []parcelRecord `yaml:"parcels"`
}

var terminalStatuses = map[string]struct{}{
	"DELIVERED": {},
	"CANCELLED": {},
	"RETURNED":  {},
}

// ParcelFileStore keeps the fixture in memory. Reload re-reads the file.
type ParcelFileStore struct {
	path string

	mu      sync.RWMutex
	parcels []domain.Parcel
}

var _ out.ParcelStore = (*ParcelFileStore)(nil)

func NewParcelFileStore(path string) (*ParcelFileStore, error) {
	s := &ParcelFileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ParcelFileStore) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read parcel file: %w", err)
	}
	parcels, err := parse(b)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.parcels = parcels
	s.mu.Unlock()
	return nil
}

func parse(b []byte) ([]domain.Parcel, error) {
	var f parcelFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(f.Parcels))
	parcels := make([]domain.Parcel, 0, len(f.Parcels))
	for i, r := range f.Parcels {
		if r.ID == "" || r.TrackingID == "" {
			return nil, fmt.Errorf("parcel %d: id and tracking_id are required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("parcel %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}

		status := strings.ToUpper(r.Status)
		if status == "" {
			status = "PENDING"
		}
		parcels = append(parcels, domain.Parcel{
			ID:               r.ID,
			TrackingID:       r.TrackingID,
			Status:           status,
			AssignedDriverID: r.AssignedDriverID,
			UpdatedAt:        r.UpdatedAt,
		})
	}
	return parcels, nil
}

func (s *ParcelFileStore) AssignedParcels(ctx context.Context, driverID string) ([]domain.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.filter(func(p domain.Parcel) bool { return p.AssignedDriverID == driverID }), nil
}

func (s *ParcelFileStore) ActiveParcels(ctx context.Context) ([]domain.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.filter(func(domain.Parcel) bool { return true }), nil
}

func (s *ParcelFileStore) filter(keep func(domain.Parcel) bool) []domain.Parcel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []domain.Parcel
	for _, p := range s.parcels {
		if _, done := terminalStatuses[p.Status]; done {
			continue
		}
		if keep(p) {
			res = append(res, p)
		}
	}
	return res
}
