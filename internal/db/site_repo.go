package db

import (
	"context"

	"clearskies/internal/types"
)

// SiteRepository reads monitored sites. Sites are maintained through the
// CRUD surface; the engine never writes them.
type SiteRepository struct {
	db DBTX
}

// NewSiteRepository creates a new SiteRepository.
func NewSiteRepository(db DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

// ListActive returns every site with active = true, ordered by name.
func (r *SiteRepository) ListActive(ctx context.Context) ([]types.Site, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, lat, lng, geotab_zone_id, active, created_at
		 FROM sites
		 WHERE active = true
		 ORDER BY name`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active sites", err)
	}
	defer rows.Close()

	var sites []types.Site
	for rows.Next() {
		var s types.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.ZoneID, &s.Active, &s.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan site row", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating site rows", err)
	}
	return sites, nil
}
