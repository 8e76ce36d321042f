package external

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clearskies/internal/types"
)

// DefaultOpenMeteoURL is the keyless Open-Meteo forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const mpsToMph = 2.23694

// WMO weather codes for an active thunderstorm. A storm reported by code
// raises the lightning probability to at least thunderstormFloorPct.
var thunderstormCodes = map[int]bool{95: true, 96: true, 99: true}

const (
	thunderstormTriggerPct = 40
	thunderstormFloorPct   = 50
)

var currentFields = []string{
	"temperature_2m",
	"apparent_temperature",
	"wind_speed_10m",
	"wind_gusts_10m",
	"weather_code",
	"precipitation",
}

// OpenMeteoClientConfig holds the configuration for creating an OpenMeteoClient.
type OpenMeteoClientConfig struct {
	BaseURL string // defaults to DefaultOpenMeteoURL
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenMeteoClient implements WeatherProvider against the Open-Meteo API.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient with its own circuit breaker.
func NewOpenMeteoClient(cfg OpenMeteoClientConfig, opts ...BaseClientOption) *OpenMeteoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := NewBaseClient(&http.Client{Timeout: timeout}, "open-meteo", ProviderRetryPolicy(), opts...)
	return NewOpenMeteoClientWithBase(base, cfg)
}

// NewOpenMeteoClientWithBase creates an OpenMeteoClient around a pre-built
// BaseClient.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{base: base, baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

type openMeteoResponse struct {
	UTCOffsetSeconds int               `json:"utc_offset_seconds"`
	Current          *openMeteoCurrent `json:"current"`
	Hourly           *openMeteoHourly  `json:"hourly"`
}

// Pointer fields distinguish a missing metric from a genuine zero.
type openMeteoCurrent struct {
	Time                string   `json:"time"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	WindSpeed10m        *float64 `json:"wind_speed_10m"`
	WindGusts10m        *float64 `json:"wind_gusts_10m"`
	WeatherCode         *int     `json:"weather_code"`
}

type openMeteoHourly struct {
	LightningPotential []*float64 `json:"lightning_potential"`
}

// Current fetches present conditions at the given coordinates. A response
// without the current block or any metric the rules depend on is an error.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lng float64) (types.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("current", strings.Join(currentFields, ","))
	q.Set("hourly", "lightning_potential")
	q.Set("forecast_hours", "1")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "auto")

	var raw json.RawMessage
	if err := c.base.getJSON(ctx, c.baseURL+"?"+q.Encode(), &raw); err != nil {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "weather fetch failed", err)
	}
	return parseOpenMeteo(raw)
}

func parseOpenMeteo(raw json.RawMessage) (types.WeatherSnapshot, error) {
	var data openMeteoResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "weather payload is not valid JSON", err)
	}

	cur := data.Current
	if cur == nil {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "weather payload has no current block", nil)
	}
	var missing []string
	if cur.WindSpeed10m == nil {
		missing = append(missing, "wind_speed_10m")
	}
	if cur.WindGusts10m == nil {
		missing = append(missing, "wind_gusts_10m")
	}
	if cur.ApparentTemperature == nil {
		missing = append(missing, "apparent_temperature")
	}
	if cur.WeatherCode == nil {
		missing = append(missing, "weather_code")
	}
	if len(missing) > 0 {
		return types.WeatherSnapshot{}, types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
			"weather payload is missing current metrics", nil, map[string]any{"missing": missing})
	}

	var cape float64
	if data.Hourly != nil && len(data.Hourly.LightningPotential) > 0 && data.Hourly.LightningPotential[0] != nil {
		cape = *data.Hourly.LightningPotential[0]
	}
	lightning := CapeToProbability(cape)
	if lightning < thunderstormTriggerPct && thunderstormCodes[*cur.WeatherCode] {
		lightning = thunderstormFloorPct
	}

	return types.WeatherSnapshot{
		Timestamp:               observationTime(cur.Time, data.UTCOffsetSeconds),
		WindSpeedMph:            roundTenth(*cur.WindSpeed10m * mpsToMph),
		WindGustMph:             roundTenth(*cur.WindGusts10m * mpsToMph),
		ApparentTempC:           roundTenth(*cur.ApparentTemperature),
		LightningProbabilityPct: lightning,
		WeatherCode:             *cur.WeatherCode,
		Raw:                     raw,
	}, nil
}

// CapeToProbability converts convective available potential energy (J/kg)
// into a lightning probability bucket between 0 and 90 percent.
func CapeToProbability(cape float64) int {
	var p float64
	switch {
	case cape < 100:
		p = cape / 100 * 10
	case cape < 500:
		p = 10 + (cape-100)/400*20
	case cape < 1500:
		p = 30 + (cape-500)/1000*30
	default:
		p = math.Min(90, math.RoundToEven(60+(cape-1500)/2000*30))
	}
	return int(math.RoundToEven(math.Max(0, p)))
}

func roundTenth(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

// observationTime converts Open-Meteo's local "2006-01-02T15:04" timestamp
// to UTC. An unparseable value falls back to the current time.
func observationTime(local string, offsetSeconds int) time.Time {
	if local == "" {
		return time.Now().UTC()
	}
	zone := time.FixedZone("site", offsetSeconds)
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, local, zone); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

var _ WeatherProvider = (*OpenMeteoClient)(nil)
