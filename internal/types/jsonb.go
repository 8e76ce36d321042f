package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*WeatherSnapshot)(nil)
	_ driver.Valuer = WeatherSnapshot{}
	_ sql.Scanner   = (*VehicleList)(nil)
	_ driver.Valuer = VehicleList(nil)
	_ sql.Scanner   = (*NotificationSummary)(nil)
	_ driver.Valuer = NotificationSummary(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// ---------------------------------------------------------------------------
// WeatherSnapshot
// ---------------------------------------------------------------------------

// Scan implements the sql.Scanner interface for reading JSONB from the database.
// Manually created holds store '{}', which scans to the zero snapshot.
func (w *WeatherSnapshot) Scan(value interface{}) error {
	return scanJSONB(w, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (w WeatherSnapshot) Value() (driver.Value, error) {
	return json.Marshal(w)
}

// ---------------------------------------------------------------------------
// VehicleList
// ---------------------------------------------------------------------------

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (vl *VehicleList) Scan(value interface{}) error {
	if value == nil {
		*vl = VehicleList{}
		return nil
	}
	return scanJSONB(vl, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
// A nil list is stored as '[]' so the column never holds JSON null.
func (vl VehicleList) Value() (driver.Value, error) {
	if vl == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]VehiclePresence(vl))
}

// ---------------------------------------------------------------------------
// NotificationSummary
// ---------------------------------------------------------------------------

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (ns *NotificationSummary) Scan(value interface{}) error {
	if value == nil {
		*ns = nil
		return nil
	}
	return scanJSONB(ns, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (ns NotificationSummary) Value() (driver.Value, error) {
	if ns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]NotificationOutcome(ns))
}
