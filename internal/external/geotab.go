package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clearskies/internal/types"
)

// DefaultGeotabServer is used when no server is configured.
const DefaultGeotabServer = "my.geotab.com"

// Geotab exception names that classify a failed call.
const (
	geotabInvalidUser   = "InvalidUserException"
	geotabDbUnavailable = "DbUnavailableException"
	geotabThisServer    = "ThisServer"
	geotabUnknownDriver = "UnknownDriverId"
)

// GeotabClientConfig holds the configuration for creating a GeotabClient.
type GeotabClientConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// GeotabClient speaks the MyGeotab JSON-RPC API (POST https://{server}/apiv1).
// It is stateless: the session to use is passed on every call and cached by
// fleet.SessionManager.
type GeotabClient struct {
	base   *BaseClient
	logger *slog.Logger
}

// NewGeotabClient creates a GeotabClient with its own circuit breaker.
func NewGeotabClient(cfg GeotabClientConfig, opts ...BaseClientOption) *GeotabClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(&http.Client{Timeout: timeout}, "geotab", ProviderRetryPolicy(), opts...)
	return &GeotabClient{base: base, logger: logger}
}

// NewGeotabClientWithBase creates a GeotabClient around a pre-built BaseClient.
func NewGeotabClientWithBase(base *BaseClient, logger *slog.Logger) *GeotabClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeotabClient{base: base, logger: logger}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type geotabRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     int    `json:"id"`
}

type geotabResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *geotabError    `json:"error"`
}

type geotabError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Data    struct {
		Type string `json:"type"`
	} `json:"data"`
	Errors []struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"errors"`
}

// text flattens every name and message so exception names can be matched
// wherever the server places them.
func (e *geotabError) text() string {
	parts := []string{e.Name, e.Message, e.Data.Type}
	for _, inner := range e.Errors {
		parts = append(parts, inner.Name, inner.Message)
	}
	return strings.Join(parts, " ")
}

type geotabCredentials struct {
	Database  string `json:"database"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
}

type geotabAuthResult struct {
	Path        string            `json:"path"`
	Credentials geotabCredentials `json:"credentials"`
}

type geotabEntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type geotabDeviceStatus struct {
	Device                geotabEntityRef `json:"device"`
	Driver                json.RawMessage `json:"driver"`
	Latitude              float64         `json:"latitude"`
	Longitude             float64         `json:"longitude"`
	Speed                 float64         `json:"speed"`
	DateTime              string          `json:"dateTime"`
	IsDeviceCommunicating bool            `json:"isDeviceCommunicating"`
}

type geotabUser struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
}

// ---------------------------------------------------------------------------
// FleetAPI implementation
// ---------------------------------------------------------------------------

// Authenticate logs in with creds. When the response names a server other
// than "ThisServer", that server is recorded on the returned session and
// every later call with the session targets it.
func (g *GeotabClient) Authenticate(ctx context.Context, creds types.FleetCredentials) (types.Session, error) {
	server := creds.Server
	if server == "" {
		server = DefaultGeotabServer
	}

	params := map[string]any{
		"database": creds.Database,
		"userName": creds.UserName,
		"password": creds.Password.Unmask(),
	}

	var result geotabAuthResult
	if err := g.call(ctx, server, "Authenticate", params, &result); err != nil {
		// An invalid user at login means bad credentials, not an expired
		// session. The cause is not wrapped so the result is never treated
		// as session-retryable.
		if types.HasCode(err, types.ErrCodeUpstreamSessionInvalid) {
			return types.Session{}, types.NewAppError(types.ErrCodeUpstreamAuthFailed,
				"geotab rejected credentials: "+err.Error(), nil)
		}
		return types.Session{}, err
	}
	if result.Credentials.SessionID == "" {
		return types.Session{}, types.NewAppError(types.ErrCodeUpstreamBadPayload,
			"geotab authenticate returned no session id", nil)
	}

	if result.Path != "" && result.Path != geotabThisServer {
		g.logger.InfoContext(ctx, "geotab redirected session to another server",
			"from", server,
			"to", result.Path,
		)
		server = result.Path
	}

	database := result.Credentials.Database
	if database == "" {
		database = creds.Database
	}
	return types.Session{
		Server:          server,
		SessionID:       result.Credentials.SessionID,
		UserName:        result.Credentials.UserName,
		Database:        database,
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}

// DevicesInZone returns the status of every device Geotab reports inside the
// zone. Driver contact details are not resolved here.
func (g *GeotabClient) DevicesInZone(ctx context.Context, sess types.Session, zoneID string) ([]types.VehiclePresence, error) {
	params := map[string]any{
		"typeName":    "DeviceStatusInfo",
		"search":      map[string]any{"zoneId": map[string]string{"id": zoneID}},
		"credentials": credentialsOf(sess),
	}

	var statuses []geotabDeviceStatus
	if err := g.call(ctx, sess.Server, "Get", params, &statuses); err != nil {
		return nil, err
	}

	vehicles := make([]types.VehiclePresence, 0, len(statuses))
	for _, s := range statuses {
		v := types.VehiclePresence{
			DeviceID:      s.Device.ID,
			DeviceName:    s.Device.Name,
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			Speed:         s.Speed,
			Communicating: s.IsDeviceCommunicating,
		}
		if driver, ok := parseDriver(s.Driver); ok {
			v.DriverID = driver.ID
			v.DriverName = driver.Name
		}
		if ts, err := time.Parse(time.RFC3339Nano, s.DateTime); err == nil {
			v.ObservedAt = ts.UTC()
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// UserPhone returns the raw phone number on the user record, or "" when the
// user has none.
func (g *GeotabClient) UserPhone(ctx context.Context, sess types.Session, userID string) (string, error) {
	params := map[string]any{
		"typeName":    "User",
		"search":      map[string]string{"id": userID},
		"credentials": credentialsOf(sess),
	}

	var users []geotabUser
	if err := g.call(ctx, sess.Server, "Get", params, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", nil
	}
	return users[0].PhoneNumber, nil
}

// SendTextMessage delivers text to the in-cab device and returns the id of
// the created TextMessage entity.
func (g *GeotabClient) SendTextMessage(ctx context.Context, sess types.Session, deviceID, text string) (string, error) {
	params := map[string]any{
		"typeName": "TextMessage",
		"entity": map[string]any{
			"device":               map[string]string{"id": deviceID},
			"isDirectionToVehicle": true,
			"messageContent": map[string]string{
				"contentType": "Normal",
				"message":     text,
			},
			"sent": true,
		},
		"credentials": credentialsOf(sess),
	}

	var id string
	if err := g.call(ctx, sess.Server, "Add", params, &id); err != nil {
		return "", err
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// call performs one JSON-RPC round trip and decodes result into out.
func (g *GeotabClient) call(ctx context.Context, server, method string, params, out any) error {
	var resp geotabResponse
	err := g.base.postJSON(ctx, geotabEndpoint(server), geotabRequest{Method: method, Params: params, ID: 1}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return classifyGeotabError(method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return types.NewAppError(types.ErrCodeUpstreamBadPayload,
			fmt.Sprintf("geotab %s returned no result", method), nil)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamBadPayload,
			fmt.Sprintf("geotab %s returned an unexpected result", method), err)
	}
	return nil
}

// classifyGeotabError maps a JSON-RPC error onto the session-invalid,
// service-unavailable or rejected classes.
func classifyGeotabError(method string, e *geotabError) error {
	text := e.text()
	details := map[string]any{"method": method, "geotab_error": truncate(text, 256)}
	switch {
	case strings.Contains(text, geotabInvalidUser):
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSessionInvalid,
			fmt.Sprintf("geotab %s: session is invalid", method), nil, details)
	case strings.Contains(text, geotabDbUnavailable):
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamFleet,
			fmt.Sprintf("geotab %s: database unavailable", method), nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamFleetRejected,
			fmt.Sprintf("geotab %s failed: %s", method, e.Message), nil, details)
	}
}

func credentialsOf(sess types.Session) geotabCredentials {
	return geotabCredentials{
		Database:  sess.Database,
		SessionID: sess.SessionID,
		UserName:  sess.UserName,
	}
}

// geotabEndpoint accepts either a bare host or a full base URL.
func geotabEndpoint(server string) string {
	server = strings.TrimSuffix(server, "/")
	if strings.Contains(server, "://") {
		return server + "/apiv1"
	}
	return "https://" + server + "/apiv1"
}

// parseDriver decodes the driver field, which Geotab sends either as an
// entity reference or as the bare string "UnknownDriverId".
func parseDriver(raw json.RawMessage) (geotabEntityRef, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return geotabEntityRef{}, false
	}
	var ref geotabEntityRef
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == "" || ref.ID == geotabUnknownDriver {
		return geotabEntityRef{}, false
	}
	return ref, true
}

var _ FleetAPI = (*GeotabClient)(nil)
