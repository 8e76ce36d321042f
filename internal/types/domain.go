package types

import (
	"encoding/json"
	"time"
)

// Site is a monitored worksite. Sites are created and deactivated through the
// CRUD surface; the engine only reads them.
type Site struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	ZoneID    string    `json:"geotab_zone_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// WeatherSnapshot is one observation of current conditions at a site.
// It is produced fresh every cycle and persisted only as the frozen copy
// inside a Hold.
type WeatherSnapshot struct {
	Timestamp               time.Time       `json:"timestamp"`
	WindSpeedMph            float64         `json:"wind_speed_mph"`
	WindGustMph             float64         `json:"wind_gust_mph"`
	ApparentTempC           float64         `json:"apparent_temp_c"`
	LightningProbabilityPct int             `json:"lightning_probability_pct"`
	WeatherCode             int             `json:"weather_code"`
	Raw                     json.RawMessage `json:"raw,omitempty"`
}

// Breach is a single rule's threshold being met by a snapshot.
type Breach struct {
	Rule      Rule    `json:"rule"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	// DurationMinutes is the recommended fixed hold length. Nil means the
	// hold clears on conditions rather than on elapsed time.
	DurationMinutes *int `json:"hold_duration_mins,omitempty"`
}

// VehiclePresence is a vehicle observed inside a site's zone.
// Empty DriverID, DriverName and PhoneNumber mean "not known".
type VehiclePresence struct {
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name"`
	DriverID      string    `json:"driver_id,omitempty"`
	DriverName    string    `json:"driver_name,omitempty"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Latitude      float64   `json:"lat"`
	Longitude     float64   `json:"lng"`
	Speed         float64   `json:"speed"`
	ObservedAt    time.Time `json:"date_time"`
	Communicating bool      `json:"is_communicating"`
}

// DisplayName returns the driver name when known, otherwise the device name.
func (v VehiclePresence) DisplayName() string {
	if v.DriverName != "" {
		return v.DriverName
	}
	return v.DeviceName
}

// VehicleList is the presence list frozen into a Hold at trigger time.
type VehicleList []VehiclePresence

// NotificationOutcome is the result of one delivery attempt, returned by the
// dispatcher and stored as a Hold's notification summary.
type NotificationOutcome struct {
	DeviceID      string             `json:"geotab_device_id,omitempty"`
	Recipient     string             `json:"recipient,omitempty"`
	DriverName    string             `json:"driver_name,omitempty"`
	PhoneNumber   string             `json:"phone_number,omitempty"`
	MessageType   MessageType        `json:"message_type"`
	MessageID     string             `json:"message_id,omitempty"`
	Status        NotificationStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
	SentAt        time.Time          `json:"sent_at"`
}

// NotificationSummary is the list of outcomes stored on a Hold when it closes.
type NotificationSummary []NotificationOutcome

// SentCount returns the number of outcomes with status sent.
func (s NotificationSummary) SentCount() int {
	n := 0
	for _, o := range s {
		if o.Status == NotificationStatusSent {
			n++
		}
	}
	return n
}

// Hold is a recorded work stoppage for a site. At most one Hold per site has
// a nil AllClearAt at any time; that is enforced by the storage layer.
type Hold struct {
	ID              string              `json:"id"`
	SiteID          string              `json:"site_id"`
	SiteName        string              `json:"site_name,omitempty"`
	TriggeredAt     time.Time           `json:"triggered_at"`
	TriggerRule     Rule                `json:"trigger_rule"`
	WeatherSnapshot WeatherSnapshot     `json:"weather_snapshot"`
	VehiclesOnSite  VehicleList         `json:"vehicles_on_site"`
	DurationMinutes *int                `json:"hold_duration_mins,omitempty"`
	AllClearAt      *time.Time          `json:"all_clear_at,omitempty"`
	IssuedBy        IssuedBy            `json:"issued_by"`
	Notifications   NotificationSummary `json:"notifications_sent,omitempty"`
}

// IsOpen reports whether the hold has not yet been cleared.
func (h *Hold) IsOpen() bool {
	return h.AllClearAt == nil
}

// NotificationRecord is an append-only entry in the notification log.
type NotificationRecord struct {
	ID            string             `json:"id"`
	HoldID        string             `json:"hold_id,omitempty"`
	SiteID        string             `json:"site_id,omitempty"`
	DriverName    string             `json:"driver_name,omitempty"`
	PhoneNumber   string             `json:"phone_number,omitempty"`
	DeviceID      string             `json:"geotab_device_id,omitempty"`
	Recipient     string             `json:"recipient,omitempty"`
	MessageID     string             `json:"message_id,omitempty"`
	MessageType   MessageType        `json:"message_type"`
	SentAt        time.Time          `json:"sent_at"`
	Status        NotificationStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// Session is an authenticated handle to the fleet-telematics provider.
// It lives in process memory only.
type Session struct {
	// Server is the host every call made with this session must target. It
	// may differ from the configured server when the provider redirects.
	Server          string    `json:"server"`
	SessionID       string    `json:"-"`
	UserName        string    `json:"userName"`
	Database        string    `json:"database"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// FleetCredentials are the configured login for the fleet-telematics provider.
type FleetCredentials struct {
	Server   string
	Database string
	UserName string
	Password SecretString
}

// Missing returns the names of required credential fields that are unset.
func (c FleetCredentials) Missing() []string {
	var missing []string
	if c.Database == "" {
		missing = append(missing, "GEOTAB_DATABASE")
	}
	if c.UserName == "" {
		missing = append(missing, "GEOTAB_USERNAME")
	}
	if c.Password.IsEmpty() {
		missing = append(missing, "GEOTAB_PASSWORD")
	}
	return missing
}
