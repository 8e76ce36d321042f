package types

import "context"

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	cycleIDKey   contextKey = "cycle_id"
	triggerKey   contextKey = "cycle_trigger"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
// Poll cycles have no inbound request, so the cycle ID is returned instead
// when no request ID is set. Outbound clients propagate this value.
func GetRequestID(ctx context.Context) string {
	if id, _ := ctx.Value(requestIDKey).(string); id != "" {
		return id
	}
	id, _ := ctx.Value(cycleIDKey).(string)
	return id
}

// WithCycle stores the poll cycle identity and what fired it ("timer",
// "startup", "manual") in the context.
func WithCycle(ctx context.Context, id string, trigger CycleTrigger) context.Context {
	ctx = context.WithValue(ctx, cycleIDKey, id)
	return context.WithValue(ctx, triggerKey, trigger)
}

// GetCycleID retrieves the poll cycle ID from the context.
func GetCycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey).(string)
	return id
}

// GetCycleTrigger retrieves what fired the current poll cycle.
func GetCycleTrigger(ctx context.Context) CycleTrigger {
	t, _ := ctx.Value(triggerKey).(CycleTrigger)
	return t
}
