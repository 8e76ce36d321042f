package external

import (
	"context"
	"log/slog"
	"time"

	"clearskies/internal/types"

	"github.com/google/uuid"
)

// StubFleetAPI implements FleetAPI without a Geotab account. It reports one
// communicating vehicle per zone and logs every text message instead of
// sending it. Used when FLEET_STUB_MODE is set.
type StubFleetAPI struct {
	logger *slog.Logger
}

// NewStubFleetAPI creates a new StubFleetAPI.
func NewStubFleetAPI(logger *slog.Logger) *StubFleetAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubFleetAPI{logger: logger}
}

func (s *StubFleetAPI) Authenticate(ctx context.Context, creds types.FleetCredentials) (types.Session, error) {
	s.logger.InfoContext(ctx, "stub: Authenticate called", "database", creds.Database)
	server := creds.Server
	if server == "" {
		server = DefaultGeotabServer
	}
	return types.Session{
		Server:          server,
		SessionID:       "stub-" + uuid.NewString(),
		UserName:        creds.UserName,
		Database:        creds.Database,
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}

func (s *StubFleetAPI) DevicesInZone(ctx context.Context, _ types.Session, zoneID string) ([]types.VehiclePresence, error) {
	s.logger.InfoContext(ctx, "stub: DevicesInZone called", "zone_id", zoneID)
	return []types.VehiclePresence{{
		DeviceID:      "stub-device-" + zoneID,
		DeviceName:    "Stub Truck " + zoneID,
		DriverID:      "stub-driver-" + zoneID,
		DriverName:    "Stub Driver",
		ObservedAt:    time.Now().UTC(),
		Communicating: true,
	}}, nil
}

func (s *StubFleetAPI) UserPhone(ctx context.Context, _ types.Session, userID string) (string, error) {
	s.logger.InfoContext(ctx, "stub: UserPhone called", "user_id", userID)
	return "5555550100", nil
}

func (s *StubFleetAPI) SendTextMessage(ctx context.Context, _ types.Session, deviceID, text string) (string, error) {
	s.logger.InfoContext(ctx, "stub: SendTextMessage called",
		"device_id", deviceID,
		"message", text,
	)
	return "stub-msg-" + uuid.NewString(), nil
}

var _ FleetAPI = (*StubFleetAPI)(nil)
