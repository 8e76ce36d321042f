package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeConflictOpenHold, "site already has an open hold", nil)
	assert.Equal(t, "conflict_open_hold_exists: site already has an open hold", appErr.Error())

	wrapped := NewAppError(ErrCodeInternalDB, "failed to insert hold", errors.New("connection reset"))
	assert.Equal(t, "internal_database_error: failed to insert hold: connection reset", wrapped.Error())
}

func TestAppError_UnwrapAndAs(t *testing.T) {
	underlying := errors.New("dial tcp: i/o timeout")
	appErr := NewAppError(ErrCodeUpstreamWeather, "weather fetch failed", underlying)
	chained := fmt.Errorf("site s1: %w", appErr)

	assert.ErrorIs(t, chained, underlying)

	var target *AppError
	assert.True(t, errors.As(chained, &target))
	assert.Equal(t, ErrCodeUpstreamWeather, target.Code)
}

func TestAppError_WithDetailsDoesNotMutate(t *testing.T) {
	original := NewAppErrorWithDetails(ErrCodeUpstreamFleetRejected, "rejected", nil, map[string]any{"method": "Get"})
	enriched := original.WithDetails(map[string]any{"zone_id": "b27A"})

	assert.Len(t, original.Details, 1)
	assert.Equal(t, "Get", enriched.Details["method"])
	assert.Equal(t, "b27A", enriched.Details["zone_id"])
}

func TestHasCode_WalksNestedAppErrors(t *testing.T) {
	inner := NewAppError(ErrCodeUpstreamSessionInvalid, "InvalidUserException", nil)
	outer := NewAppError(ErrCodeUpstreamFleetRejected, "Get DeviceStatusInfo failed", inner)

	assert.Equal(t, ErrCodeUpstreamFleetRejected, CodeOf(outer))
	assert.True(t, HasCode(outer, ErrCodeUpstreamSessionInvalid))
	assert.False(t, HasCode(outer, ErrCodeInternalDB))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeInternalDB))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		session     bool
		config      bool
		transient   bool
		persistence bool
	}{
		{"session invalid", NewAppError(ErrCodeUpstreamSessionInvalid, "x", nil), true, false, true, false},
		{"fleet service unavailable", NewAppError(ErrCodeUpstreamFleet, "x", nil), true, false, true, false},
		{"fleet rejected", NewAppError(ErrCodeUpstreamFleetRejected, "x", nil), false, false, true, false},
		{"http 5xx", NewAppError(ErrCodeUpstreamUnavailable, "x", nil), false, false, true, false},
		{"missing credentials", NewAppError(ErrCodeConfigMissingCredentials, "x", nil), false, true, false, false},
		{"database", fmt.Errorf("wrap: %w", NewAppError(ErrCodeInternalDB, "x", nil)), false, false, false, true},
		{"plain error", errors.New("boom"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.session, IsSessionRetryable(tt.err), "IsSessionRetryable")
			assert.Equal(t, tt.config, IsConfigurationError(tt.err), "IsConfigurationError")
			assert.Equal(t, tt.transient, IsTransient(tt.err), "IsTransient")
			assert.Equal(t, tt.persistence, IsPersistenceError(tt.err), "IsPersistenceError")
		})
	}
}
