package fleet

import (
	"context"
	"log/slog"
	"strings"

	"clearskies/internal/external"
	"clearskies/internal/types"
)

// SessionRunner runs a provider call with a valid session, re-authenticating
// once on a session-class failure. *SessionManager implements it.
type SessionRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context, sess types.Session) error) error
}

// PresenceResolverConfig holds the configuration for creating a PresenceResolver.
type PresenceResolverConfig struct {
	Logger *slog.Logger
}

// PresenceResolver lists the vehicles inside a site's zone with their
// driver's contact number where one can be found.
type PresenceResolver struct {
	sessions SessionRunner
	api      external.FleetAPI
	logger   *slog.Logger
}

// NewPresenceResolver creates a PresenceResolver.
func NewPresenceResolver(sessions SessionRunner, api external.FleetAPI, cfg PresenceResolverConfig) *PresenceResolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceResolver{sessions: sessions, api: api, logger: logger}
}

// VehiclesInZone returns the communicating vehicles currently inside zoneID.
// Each distinct driver's phone is looked up once; a failed lookup leaves
// that driver's vehicles without a phone number but still in the result.
// Only the zone query itself can fail the call.
func (r *PresenceResolver) VehiclesInZone(ctx context.Context, zoneID string) ([]types.VehiclePresence, error) {
	var devices []types.VehiclePresence
	err := r.sessions.Do(ctx, func(ctx context.Context, sess types.Session) error {
		var err error
		devices, err = r.api.DevicesInZone(ctx, sess, zoneID)
		return err
	})
	if err != nil {
		return nil, err
	}

	vehicles := make([]types.VehiclePresence, 0, len(devices))
	for _, d := range devices {
		if d.Communicating {
			vehicles = append(vehicles, d)
		}
	}

	phones := make(map[string]string)
	for i := range vehicles {
		driverID := vehicles[i].DriverID
		if driverID == "" {
			continue
		}
		phone, seen := phones[driverID]
		if !seen {
			phone = r.lookupPhone(ctx, driverID)
			phones[driverID] = phone
		}
		vehicles[i].PhoneNumber = phone
	}

	r.logger.DebugContext(ctx, "resolved zone presence",
		"zone_id", zoneID,
		"devices", len(devices),
		"communicating", len(vehicles),
		"drivers", len(phones),
	)
	return vehicles, nil
}

func (r *PresenceResolver) lookupPhone(ctx context.Context, driverID string) string {
	var raw string
	err := r.sessions.Do(ctx, func(ctx context.Context, sess types.Session) error {
		var err error
		raw, err = r.api.UserPhone(ctx, sess, driverID)
		return err
	})
	if err != nil {
		r.logger.WarnContext(ctx, "driver contact lookup failed",
			"driver_id", driverID,
			"error", err,
		)
		return ""
	}
	return NormalizePhone(raw)
}

// NormalizePhone reduces a free-form phone number to E.164, assuming the
// North American country code for ten-digit numbers. Input with no digits
// yields "".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}
