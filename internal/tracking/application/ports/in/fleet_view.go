package in

import (
	"context"

	"fastfare/internal/tracking/domain"
)

// FleetViewUseCase joins live positions with parcel assignments. Parcel
// store failures degrade the view instead of failing it.
type FleetViewUseCase interface {
	Execute(ctx context.Context) domain.FleetView
}
