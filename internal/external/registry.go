package external

import (
	"log/slog"

	"clearskies/internal/config"
)

// ClientRegistry holds the provider clients built from configuration.
type ClientRegistry struct {
	Fleet   FleetAPI
	Weather WeatherProvider
}

// NewClientRegistry builds the provider clients. Weather always uses
// Open-Meteo, which needs no credentials. Fleet uses the logging stub when
// cfg.Fleet.StubMode is set and the Geotab client otherwise.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...BaseClientOption) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	reg := &ClientRegistry{
		Weather: NewOpenMeteoClient(OpenMeteoClientConfig{
			BaseURL: cfg.Weather.BaseURL,
			Timeout: cfg.Weather.Timeout,
			Logger:  logger.With("client", "open-meteo"),
		}, opts...),
	}

	if cfg.Fleet.StubMode {
		logger.Info("initializing fleet client in STUB mode", "environment", cfg.Environment)
		reg.Fleet = NewStubFleetAPI(logger.With("client", "geotab", "mode", "stub"))
		return reg
	}

	reg.Fleet = NewGeotabClient(GeotabClientConfig{
		Timeout: cfg.Fleet.Timeout,
		Logger:  logger.With("client", "geotab"),
	}, opts...)
	return reg
}
