package fleet

import (
	"context"

	"clearskies/internal/external"
	"clearskies/internal/types"
)

// GeotabMessenger delivers text to a vehicle's in-cab device as a Geotab
// TextMessage. The recipient is the Geotab device id.
type GeotabMessenger struct {
	sessions SessionRunner
	api      external.FleetAPI
}

// NewGeotabMessenger creates a GeotabMessenger.
func NewGeotabMessenger(sessions SessionRunner, api external.FleetAPI) *GeotabMessenger {
	return &GeotabMessenger{sessions: sessions, api: api}
}

// Send delivers text to deviceID and returns the provider message id.
// Failures carry types.ErrCodeUpstreamMessaging wrapping the provider error.
func (m *GeotabMessenger) Send(ctx context.Context, deviceID, text string) (string, error) {
	var id string
	err := m.sessions.Do(ctx, func(ctx context.Context, sess types.Session) error {
		var err error
		id, err = m.api.SendTextMessage(ctx, sess, deviceID, text)
		return err
	})
	if err != nil {
		if types.IsConfigurationError(err) {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamMessaging, "text message to "+deviceID+" failed", err)
	}
	return id, nil
}
