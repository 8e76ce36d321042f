package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clearskies/internal/types"
)

// HoldRepository provides data access for the holds_log table.
//
// The one-open-hold-per-site invariant is enforced by the partial unique
// index holds_log_one_open_per_site, not by reading before writing, so
// overlapping poll cycles cannot both open a hold for the same site.
type HoldRepository struct {
	db DBTX
}

// NewHoldRepository creates a new HoldRepository.
func NewHoldRepository(db DBTX) *HoldRepository {
	return &HoldRepository{db: db}
}

const holdColumns = `h.id, h.site_id, s.name, h.triggered_at, h.trigger_rule,
	h.weather_snapshot, h.vehicles_on_site, h.hold_duration_mins,
	h.all_clear_at, h.issued_by, h.notifications_sent`

func scanHold(row pgx.Row) (*types.Hold, error) {
	var (
		h        types.Hold
		rule     string
		issuedBy string
		siteName *string
	)
	err := row.Scan(
		&h.ID,
		&h.SiteID,
		&siteName,
		&h.TriggeredAt,
		&rule,
		&h.WeatherSnapshot,
		&h.VehiclesOnSite,
		&h.DurationMinutes,
		&h.AllClearAt,
		&issuedBy,
		&h.Notifications,
	)
	if err != nil {
		return nil, err
	}
	h.SiteName = stringOrEmpty(siteName)
	h.TriggerRule = types.Rule(rule)
	h.IssuedBy = types.IssuedBy(issuedBy)
	return &h, nil
}

// GetActive returns the site's open hold, or (nil, nil) when it has none.
func (r *HoldRepository) GetActive(ctx context.Context, siteID string) (*types.Hold, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+holdColumns+`
		 FROM holds_log h
		 LEFT JOIN sites s ON s.id = h.site_id
		 WHERE h.site_id = $1 AND h.all_clear_at IS NULL
		 ORDER BY h.triggered_at DESC
		 LIMIT 1`,
		siteID,
	)
	hold, err := scanHold(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to get active hold", err,
			map[string]any{"site_id": siteID})
	}
	return hold, nil
}

// Create inserts an open hold. When the site already has an open hold the
// insert loses the race on the unique index and Create returns
// types.ErrCodeConflictOpenHold.
func (r *HoldRepository) Create(ctx context.Context, h *types.Hold) error {
	issuedBy := h.IssuedBy
	if issuedBy == "" {
		issuedBy = types.IssuedByAuto
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO holds_log
		 (id, site_id, triggered_at, trigger_rule, weather_snapshot,
		  vehicles_on_site, hold_duration_mins, issued_by)
		 VALUES ($1, $2, COALESCE($3, NOW()), $4, $5, $6, $7, $8)`,
		h.ID,
		h.SiteID,
		nilIfZeroTime(h.TriggeredAt),
		string(h.TriggerRule),
		h.WeatherSnapshot,
		h.VehiclesOnSite,
		h.DurationMinutes,
		string(issuedBy),
	)
	if err != nil {
		if isUniqueViolation(err, OpenHoldIndex) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictOpenHold,
				"site already has an open hold", err,
				map[string]any{"site_id": h.SiteID})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create hold", err)
	}
	return nil
}

// Close sets all_clear_at and the notification summary on an open hold.
// It returns false without error when the hold was already closed, leaving
// the closed row untouched.
func (r *HoldRepository) Close(ctx context.Context, holdID string, closedAt time.Time, summary types.NotificationSummary) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE holds_log
		 SET all_clear_at = $2, notifications_sent = $3
		 WHERE id = $1 AND all_clear_at IS NULL`,
		holdID,
		closedAt,
		summary,
	)
	if err != nil {
		return false, types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to close hold", err,
			map[string]any{"hold_id": holdID})
	}
	return tag.RowsAffected() == 1, nil
}

// ListActive returns every open hold across all sites, newest first.
func (r *HoldRepository) ListActive(ctx context.Context) ([]types.Hold, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+holdColumns+`
		 FROM holds_log h
		 LEFT JOIN sites s ON s.id = h.site_id
		 WHERE h.all_clear_at IS NULL
		 ORDER BY h.triggered_at DESC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active holds", err)
	}
	defer rows.Close()

	var holds []types.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan hold row", err)
		}
		holds = append(holds, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating hold rows", err)
	}
	return holds, nil
}
