package repo

import (
	"context"
	"fmt"

	out "fastfare/internal/tracking/application/ports/out"
	"fastfare/internal/tracking/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activeStatuses are the parcel states that still need a driver.
var activeStatuses = []string{"PENDING", "ASSIGNED", "PICKED_UP", "IN_TRANSIT", "OUT_FOR_DELIVERY"}

type parcelPgRepository struct {
	pool *pgxpool.Pool
}

func NewParcelPgRepository(pool *pgxpool.Pool) out.ParcelStore {
	return &parcelPgRepository{pool: pool}
}

func (r *parcelPgRepository) AssignedParcels(ctx context.Context, driverID string) ([]domain.Parcel, error) {
	query := `
		SELECT id, tracking_id, status, COALESCE(assigned_driver_id, ''), updated_at
		FROM parcels
		WHERE assigned_driver_id = $1 AND status = ANY($2)
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, driverID, activeStatuses)
	if err != nil {
		return nil, fmt.Errorf("query assigned parcels: %w", err)
	}
	return collectParcels(rows)
}

func (r *parcelPgRepository) ActiveParcels(ctx context.Context) ([]domain.Parcel, error) {
	query := `
		SELECT id, tracking_id, status, COALESCE(assigned_driver_id, ''), updated_at
		FROM parcels
		WHERE status = ANY($1)
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, activeStatuses)
	if err != nil {
		return nil, fmt.Errorf("query active parcels: %w", err)
	}
	return collectParcels(rows)
}

func collectParcels(rows pgx.Rows) ([]domain.Parcel, error) {
	parcels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Parcel, error) {
		var p domain.Parcel
		err := row.Scan(&p.ID, &p.TrackingID, &p.Status, &p.AssignedDriverID, &p.UpdatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan parcels: %w", err)
	}
	return parcels, nil
}
