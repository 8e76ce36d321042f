package scheduler

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"clearskies/internal/holds"
	"clearskies/internal/types"
)

// WeatherProvider fetches current conditions for a coordinate.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lng float64) (types.WeatherSnapshot, error)
}

// HoldReader reads a site's open hold. A nil hold with a nil error means the
// site has none.
type HoldReader interface {
	GetActive(ctx context.Context, siteID string) (*types.Hold, error)
}

// HoldAdvancer drives the hold state machine. *holds.Lifecycle implements it.
type HoldAdvancer interface {
	Advance(ctx context.Context, site types.Site, snapshot types.WeatherSnapshot, active *types.Hold) (holds.Transition, error)
}

// SiteEvaluatorConfig holds the configuration for creating a SiteEvaluator.
type SiteEvaluatorConfig struct {
	Logger *slog.Logger
}

// SiteEvaluator runs one site's evaluation for one cycle.
type SiteEvaluator struct {
	weather   WeatherProvider
	holds     HoldReader
	lifecycle HoldAdvancer
	logger    *slog.Logger
}

// NewSiteEvaluator creates a SiteEvaluator.
func NewSiteEvaluator(weather WeatherProvider, holdReader HoldReader, lifecycle HoldAdvancer, cfg SiteEvaluatorConfig) *SiteEvaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteEvaluator{
		weather:   weather,
		holds:     holdReader,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Evaluate fetches the site's weather and open hold concurrently, waits for
// both, then advances the hold state machine.
//
// A weather failure skips the site: the result is marked Skipped and the
// error is nil. A hold read failure is returned; the site is never treated
// as having no hold when its state is unknown.
func (e *SiteEvaluator) Evaluate(ctx context.Context, site types.Site) (SiteResult, error) {
	result := SiteResult{SiteID: site.ID, SiteName: site.Name, Transition: holds.TransitionNone}

	var (
		snapshot   types.WeatherSnapshot
		weatherErr error
		active     *types.Hold
		holdErr    error
	)

	// Both fetches always run to completion; neither cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		snapshot, weatherErr = e.weather.Current(ctx, site.Latitude, site.Longitude)
		return nil
	})
	g.Go(func() error {
		active, holdErr = e.holds.GetActive(ctx, site.ID)
		return nil
	})
	_ = g.Wait()

	if weatherErr != nil {
		e.logger.WarnContext(ctx, "weather fetch failed, skipping site",
			"site_id", site.ID,
			"site_name", site.Name,
			"error", weatherErr,
		)
		result.Skipped = true
		return result, nil
	}
	if holdErr != nil {
		return result, holdErr
	}

	transition, err := e.lifecycle.Advance(ctx, site, snapshot, active)
	result.Transition = transition
	if err != nil {
		return result, err
	}

	if transition == holds.TransitionNone && active == nil {
		e.logger.InfoContext(ctx, "site all clear",
			"site_id", site.ID,
			"site_name", site.Name,
			"wind_gust_mph", snapshot.WindGustMph,
			"lightning_pct", snapshot.LightningProbabilityPct,
			"apparent_temp_c", snapshot.ApparentTempC,
		)
	}
	return result, nil
}
