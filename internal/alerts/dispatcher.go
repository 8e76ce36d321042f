// Package alerts delivers hold and all-clear notices to the vehicles on a
// site and records every delivery attempt in the notification log.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"clearskies/internal/types"

	"github.com/google/uuid"
)

// Messenger sends text to one recipient and returns the provider's message id.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) (string, error)
}

// NotificationRepository appends to the notification log.
type NotificationRepository interface {
	Append(ctx context.Context, record *types.NotificationRecord) error
}

// SupervisorNotifier sends one e-mail copy of an event to every address in
// Recipients.
type SupervisorNotifier interface {
	Recipients() []string
	Notify(ctx context.Context, subject, body string) error
}

// Metrics receives dispatcher instrumentation.
type Metrics interface {
	RecordNotification(messageType types.MessageType, status types.NotificationStatus)
	RecordSkippedRecipient(messageType types.MessageType)
}

type noopMetrics struct{}

func (noopMetrics) RecordNotification(types.MessageType, types.NotificationStatus) {}
func (noopMetrics) RecordSkippedRecipient(types.MessageType) {}

// Alert describes one hold event to announce.
type Alert struct {
	HoldID          string
	SiteID          string
	SiteName        string
	Rule            types.Rule
	Vehicles        []types.VehiclePresence
	DurationMinutes *int
}

// DispatcherConfig holds the configuration for creating a Dispatcher.
type DispatcherConfig struct {
	Logger *slog.Logger
	Clock  types.Clock

	// Supervisors is optional. When nil no e-mail copy is sent.
	Supervisors SupervisorNotifier
	Metrics     Metrics
}

// Dispatcher sends per-vehicle notices. Attempts are independent: a failed
// send is recorded with its reason and the remaining vehicles are still
// attempted.
type Dispatcher struct {
	messenger   Messenger
	log         NotificationRepository
	supervisors SupervisorNotifier
	metrics     Metrics
	clock       types.Clock
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(messenger Messenger, log NotificationRepository, cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		messenger:   messenger,
		log:         log,
		supervisors: cfg.Supervisors,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
	}
}

// SendHoldAlerts notifies every vehicle in a.Vehicles that a hold is in
// effect. Vehicles without a device id are skipped and produce no record.
func (d *Dispatcher) SendHoldAlerts(ctx context.Context, a Alert) []types.NotificationOutcome {
	issuedAt := d.clock.Now()
	outcomes := d.dispatch(ctx, a, types.MessageTypeHold, func(v types.VehiclePresence) string {
		return RenderHoldMessage(a.SiteName, a.Rule, a.DurationMinutes, v, issuedAt)
	})
	d.copySupervisors(ctx, a, types.MessageTypeHold, issuedAt)
	return outcomes
}

// SendAllClearAlerts notifies every vehicle in a.Vehicles that the hold has
// ended. Callers pass the presence list frozen when the hold opened.
func (d *Dispatcher) SendAllClearAlerts(ctx context.Context, a Alert) []types.NotificationOutcome {
	issuedAt := d.clock.Now()
	outcomes := d.dispatch(ctx, a, types.MessageTypeAllClear, func(v types.VehiclePresence) string {
		return RenderAllClearMessage(a.SiteName, a.Rule, v)
	})
	d.copySupervisors(ctx, a, types.MessageTypeAllClear, issuedAt)
	return outcomes
}

func (d *Dispatcher) dispatch(ctx context.Context, a Alert, messageType types.MessageType, render func(types.VehiclePresence) string) []types.NotificationOutcome {
	outcomes := make([]types.NotificationOutcome, 0, len(a.Vehicles))
	for _, v := range a.Vehicles {
		if v.DeviceID == "" {
			d.metrics.RecordSkippedRecipient(messageType)
			d.logger.WarnContext(ctx, "vehicle has no device id, notification skipped",
				"hold_id", a.HoldID,
				"site_id", a.SiteID,
				"site_name", a.SiteName,
				"device_name", v.DeviceName,
				"message_type", string(messageType),
			)
			continue
		}

		outcome := types.NotificationOutcome{
			DeviceID:    v.DeviceID,
			Recipient:   v.DeviceID,
			DriverName:  v.DriverName,
			PhoneNumber: v.PhoneNumber,
			MessageType: messageType,
		}

		msgID, err := d.messenger.Send(ctx, v.DeviceID, render(v))
		outcome.SentAt = d.clock.Now()
		if err != nil {
			outcome.Status = types.NotificationStatusFailed
			outcome.FailureReason = err.Error()
			d.logger.WarnContext(ctx, "notification failed",
				"hold_id", a.HoldID,
				"site_id", a.SiteID,
				"device_id", v.DeviceID,
				"message_type", string(messageType),
				"error", err,
			)
		} else {
			outcome.Status = types.NotificationStatusSent
			outcome.MessageID = msgID
			d.logger.InfoContext(ctx, "notification sent",
				"hold_id", a.HoldID,
				"site_id", a.SiteID,
				"device_id", v.DeviceID,
				"driver_name", v.DriverName,
				"message_type", string(messageType),
				"message_id", msgID,
			)
		}

		d.metrics.RecordNotification(messageType, outcome.Status)
		d.record(ctx, a, outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// record appends the attempt to the notification log. A failed append is
// logged and never changes the attempt's outcome.
func (d *Dispatcher) record(ctx context.Context, a Alert, o types.NotificationOutcome) {
	rec := &types.NotificationRecord{
		ID:            uuid.NewString(),
		HoldID:        a.HoldID,
		SiteID:        a.SiteID,
		DriverName:    o.DriverName,
		PhoneNumber:   o.PhoneNumber,
		DeviceID:      o.DeviceID,
		Recipient:     o.Recipient,
		MessageID:     o.MessageID,
		MessageType:   o.MessageType,
		SentAt:        o.SentAt,
		Status:        o.Status,
		FailureReason: o.FailureReason,
	}
	if err := d.log.Append(ctx, rec); err != nil {
		d.logger.ErrorContext(ctx, "failed to append notification log",
			"hold_id", a.HoldID,
			"device_id", o.DeviceID,
			"recipient", o.Recipient,
			"error", err,
		)
	}
}

// copySupervisors e-mails the configured supervisors and logs one custom
// record per address. Its outcome never affects the vehicle dispatch.
func (d *Dispatcher) copySupervisors(ctx context.Context, a Alert, messageType types.MessageType, at time.Time) {
	if d.supervisors == nil {
		return
	}
	recipients := d.supervisors.Recipients()
	if len(recipients) == 0 {
		return
	}

	status := types.NotificationStatusSent
	reason := ""
	err := d.supervisors.Notify(ctx, renderSupervisorSubject(a, messageType), renderSupervisorBody(a, messageType, at))
	if err != nil {
		status = types.NotificationStatusFailed
		reason = err.Error()
		d.logger.WarnContext(ctx, "supervisor e-mail failed",
			"hold_id", a.HoldID,
			"site_id", a.SiteID,
			"recipients", len(recipients),
			"error", err,
		)
	}

	sentAt := d.clock.Now()
	for _, addr := range recipients {
		d.metrics.RecordNotification(types.MessageTypeCustom, status)
		d.record(ctx, a, types.NotificationOutcome{
			Recipient:     addr,
			MessageType:   types.MessageTypeCustom,
			Status:        status,
			FailureReason: reason,
			SentAt:        sentAt,
		})
	}
}
