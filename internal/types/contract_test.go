package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"
)

// snakeCaseRegexp matches lowercase words joined by single underscores.
var snakeCaseRegexp = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

func isSnakeCase(key string) bool {
	return snakeCaseRegexp.MatchString(key)
}

// assertAllKeysSnakeCase walks a decoded JSON value and reports every object
// key that is not snake_case, with its path.
func assertAllKeysSnakeCase(t *testing.T, path string, v any) {
	t.Helper()

	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			fullPath := key
			if path != "" {
				fullPath = path + "." + key
			}
			if !isSnakeCase(key) {
				t.Errorf("JSON key %q at path %q is not snake_case", key, fullPath)
			}
			assertAllKeysSnakeCase(t, fullPath, child)
		}
	case []any:
		for i, item := range val {
			assertAllKeysSnakeCase(t, fmt.Sprintf("%s[%d]", path, i), item)
		}
	}
}

func decodeRaw(t *testing.T, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal %T: %v", v, err)
	}
	return raw
}

// The hold row's JSONB columns and the API share these documents, so every
// key must stay snake_case even when optional fields are populated.
func TestHoldSnakeCaseContract(t *testing.T) {
	now := time.Date(2026, 7, 14, 15, 0, 0, 0, time.UTC)
	cleared := now.Add(45 * time.Minute)
	d := 30

	hold := Hold{
		ID:          "h1",
		SiteID:      "s1",
		SiteName:    "North Yard",
		TriggeredAt: now,
		TriggerRule: RuleLightning,
		WeatherSnapshot: WeatherSnapshot{
			Timestamp:               now,
			WindSpeedMph:            12.5,
			WindGustMph:             22.1,
			ApparentTempC:           31.4,
			LightningProbabilityPct: 55,
			WeatherCode:             95,
		},
		VehiclesOnSite: VehicleList{{
			DeviceID:      "b1",
			DeviceName:    "Truck 12",
			DriverID:      "u1",
			DriverName:    "Sam Ortiz",
			PhoneNumber:   "+15125550100",
			Latitude:      30.27,
			Longitude:     -97.74,
			ObservedAt:    now,
			Communicating: true,
		}},
		DurationMinutes: &d,
		AllClearAt:      &cleared,
		IssuedBy:        IssuedByAuto,
		Notifications: NotificationSummary{{
			DeviceID:      "b1",
			Recipient:     "b1",
			DriverName:    "Sam Ortiz",
			PhoneNumber:   "+15125550100",
			MessageType:   MessageTypeAllClear,
			MessageID:     "m1",
			Status:        NotificationStatusFailed,
			FailureReason: "device offline",
			SentAt:        cleared,
		}},
	}

	assertAllKeysSnakeCase(t, "", decodeRaw(t, hold))
}

func TestNotificationRecordSnakeCaseContract(t *testing.T) {
	rec := NotificationRecord{
		ID:            "n1",
		HoldID:        "h1",
		SiteID:        "s1",
		DriverName:    "Sam Ortiz",
		PhoneNumber:   "+15125550100",
		DeviceID:      "b1",
		Recipient:     "b1",
		MessageID:     "m1",
		MessageType:   MessageTypeHold,
		SentAt:        time.Date(2026, 7, 14, 15, 1, 0, 0, time.UTC),
		Status:        NotificationStatusSent,
		FailureReason: "",
	}

	assertAllKeysSnakeCase(t, "", decodeRaw(t, rec))
}

func TestSiteSnakeCaseContract(t *testing.T) {
	site := Site{ID: "s1", Name: "North Yard", Latitude: 30.27, Longitude: -97.74, ZoneID: "z1", Active: true}
	assertAllKeysSnakeCase(t, "", decodeRaw(t, site))
}

func TestSnakeCaseHelper(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"lat", true},
		{"hold_duration_mins", true},
		{"geotab_device_id", true},
		{"wind_speed_10m", true},
		{"holdID", false},
		{"Hold", false},
		{"_leading", false},
		{"trailing_", false},
		{"double__underscore", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isSnakeCase(tt.key); got != tt.want {
			t.Errorf("isSnakeCase(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
