package external

import (
	"context"

	"clearskies/internal/types"
)

// ---------------------------------------------------------------------------
// Fleet telematics (Geotab)
// ---------------------------------------------------------------------------

// FleetAPI is the raw fleet-telematics capability. Calls other than
// Authenticate take the session to use explicitly; caching and re-login are
// the caller's concern.
//
// Errors carry types.ErrCodeUpstreamSessionInvalid when the session is no
// longer accepted and types.ErrCodeUpstreamFleet when the provider database
// is temporarily unavailable. Both permit one re-authentication and retry.
type FleetAPI interface {
	// Authenticate exchanges credentials for a session. The returned
	// session's Server may differ from creds.Server.
	Authenticate(ctx context.Context, creds types.FleetCredentials) (types.Session, error)

	// DevicesInZone lists device status inside a geofence, unfiltered and
	// without driver contact details.
	DevicesInZone(ctx context.Context, sess types.Session, zoneID string) ([]types.VehiclePresence, error)

	// UserPhone returns the phone number recorded for a driver, possibly "".
	UserPhone(ctx context.Context, sess types.Session, userID string) (string, error)

	// SendTextMessage sends text to the in-cab device and returns the
	// provider's message id.
	SendTextMessage(ctx context.Context, sess types.Session, deviceID, text string) (string, error)
}

// ---------------------------------------------------------------------------
// Weather (Open-Meteo)
// ---------------------------------------------------------------------------

// WeatherProvider returns present conditions at a coordinate. Every error is
// transient and carries types.ErrCodeUpstreamWeather.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lng float64) (types.WeatherSnapshot, error)
}
