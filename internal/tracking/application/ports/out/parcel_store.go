package out

import (
	"context"

	"fastfare/internal/tracking/domain"
)

// ParcelStore is the read-only view of the external shipment system.
type ParcelStore interface {
	// AssignedParcels returns the in-flight parcels assigned to driverID.
	AssignedParcels(ctx context.Context, driverID string) ([]domain.Parcel, error)

	// ActiveParcels returns every in-flight parcel, assigned or not.
	ActiveParcels(ctx context.Context) ([]domain.Parcel, error)
}
