package types

import "log/slog"

const redacted = "***REDACTED***"

// SecretString holds a credential (Geotab password, SMTP password, database
// URL, API key). fmt, JSON and slog all print a placeholder instead of the
// value. Unmask is the only way to read it.
type SecretString string

// String implements fmt.Stringer.
func (s SecretString) String() string { return redacted }

// GoString keeps %#v from printing the raw value.
func (s SecretString) GoString() string { return redacted }

// MarshalJSON implements json.Marshaler.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer so secrets passed as log attributes
// stay masked under any handler.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Unmask returns the plaintext. Call it only at the point the credential is
// handed to the provider, SMTP server or database driver.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether the secret is unset without unmasking it.
func (s SecretString) IsEmpty() bool {
	return s == ""
}
