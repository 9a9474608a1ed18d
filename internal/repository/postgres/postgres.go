package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/trafficops/internal/domain"
)

// PostgresRepository implements domain.CameraRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListCameras reads the camera registry. Rows without coordinates are returned
// without a location; they are never visible in a viewport.
func (r *PostgresRepository) ListCameras(ctx context.Context) ([]domain.CameraFeed, error) {
	query := `
		SELECT id, name, latitude, longitude, status
		FROM cameras
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query cameras: %w", err)
	}
	defer rows.Close()

	results := []domain.CameraFeed{}
	for rows.Next() {
		var (
			c        domain.CameraFeed
			lat, lng *float64
			status   *string
		)
		if err := rows.Scan(&c.ID, &c.Name, &lat, &lng, &status); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan camera row: %w", err)
		}
		if lat != nil && lng != nil {
			c.Location = &domain.LatLng{Lat: *lat, Lng: *lng}
		}
		c.Status = domain.CameraOffline
		if status != nil && *status != "" {
			c.Status = domain.CameraStatus(*status)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read camera rows: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
