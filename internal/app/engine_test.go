package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearskies/internal/config"
	"clearskies/internal/external"
	"clearskies/internal/holds"
	"clearskies/internal/types"
)

// memDB answers the handful of statements the repositories issue. It keeps
// one site, no open holds, and counts writes.
type memDB struct {
	mu            sync.Mutex
	sites         []types.Site
	holdInserts   int
	notifications []string
}

func (m *memDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.Contains(sql, "INSERT INTO holds_log"):
		m.holdInserts++
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(sql, "INSERT INTO notification_log"):
		m.notifications = append(m.notifications, args[8].(string))
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (m *memDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "FROM sites") {
		return &siteRows{sites: m.sites}, nil
	}
	return &siteRows{}, nil
}

func (m *memDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return noRow{}
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

type siteRows struct {
	sites []types.Site
	idx   int
}

func (r *siteRows) Close()                                       {}
func (r *siteRows) Err() error                                   { return nil }
func (r *siteRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *siteRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *siteRows) Values() ([]any, error)                       { return nil, nil }
func (r *siteRows) RawValues() [][]byte                          { return nil }
func (r *siteRows) Conn() *pgx.Conn                              { return nil }

func (r *siteRows) Next() bool {
	if r.idx >= len(r.sites) {
		return false
	}
	r.idx++
	return true
}

func (r *siteRows) Scan(dest ...any) error {
	s := r.sites[r.idx-1]
	*dest[0].(*string) = s.ID
	*dest[1].(*string) = s.Name
	*dest[2].(*float64) = s.Latitude
	*dest[3].(*float64) = s.Longitude
	*dest[4].(*string) = s.ZoneID
	*dest[5].(*bool) = s.Active
	*dest[6].(*time.Time) = s.CreatedAt
	return nil
}

type fixedWeather struct {
	snapshot types.WeatherSnapshot
}

func (w fixedWeather) Current(context.Context, float64, float64) (types.WeatherSnapshot, error) {
	return w.snapshot, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Thresholds:  config.ThresholdConfig{Mode: "standard"},
		Fleet: config.FleetConfig{
			Server:   "my.geotab.com",
			Database: "acme",
			Username: "ops@acme.test",
			Password: types.SecretString("pw"),
			StubMode: true,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEngine_UnknownThresholdMode(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.Mode = "lenient"

	_, err := NewEngine(cfg, Dependencies{DB: &memDB{}, Logger: discardLogger()})
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestNewEngine_DemoAliasSelectsDemoThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.DemoMode = true

	eng, err := NewEngine(cfg, Dependencies{DB: &memDB{}, Fleet: external.NewStubFleetAPI(discardLogger()), Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, 5.0, eng.Rules.Thresholds().LightningPct)
}

func TestEngine_CycleOpensHoldAndNotifies(t *testing.T) {
	mem := &memDB{sites: []types.Site{{
		ID: "s1", Name: "North Yard", Latitude: 30.27, Longitude: -97.74, ZoneID: "z1", Active: true,
	}}}
	reg := prometheus.NewRegistry()
	eng, err := NewEngine(testConfig(), Dependencies{
		DB:       mem,
		Fleet:    external.NewStubFleetAPI(discardLogger()),
		Weather:  fixedWeather{snapshot: types.WeatherSnapshot{LightningProbabilityPct: 70}},
		Registry: reg,
		Clock:    types.FixedClock(time.Date(2026, 7, 14, 15, 0, 0, 0, time.UTC)),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	report := eng.Scheduler.RunCycle(context.Background(), types.CycleTriggerManual)

	assert.Equal(t, 1, report.Sites)
	assert.Equal(t, 1, report.Opened)
	require.Len(t, report.Results, 1)
	assert.Equal(t, holds.TransitionOpened, report.Results[0].Transition)
	assert.Equal(t, 1, mem.holdInserts)
	assert.Equal(t, []string{string(types.MessageTypeHold)}, mem.notifications)

	rec := httptest.NewRecorder()
	eng.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `clearskies_holds_opened_total{rule="LIGHTNING_30_30"} 1`)
	assert.Contains(t, rec.Body.String(), `clearskies_notifications_total{status="sent",type="hold"} 1`)
}

func TestEngine_CalmWeatherDoesNothing(t *testing.T) {
	mem := &memDB{sites: []types.Site{{ID: "s1", Name: "North Yard", ZoneID: "z1", Active: true}}}
	eng, err := NewEngine(testConfig(), Dependencies{
		DB:      mem,
		Fleet:   external.NewStubFleetAPI(discardLogger()),
		Weather: fixedWeather{snapshot: types.WeatherSnapshot{WindGustMph: 12, ApparentTempC: 24}},
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	report := eng.Scheduler.RunCycle(context.Background(), types.CycleTriggerTimer)

	assert.Equal(t, 0, report.Opened)
	assert.Equal(t, 0, mem.holdInserts)
	assert.Empty(t, mem.notifications)
}
