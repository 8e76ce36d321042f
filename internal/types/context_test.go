package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRequestID_FallsBackToCycleID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithCycle(ctx, "cyc_123", CycleTriggerTimer)
	assert.Equal(t, "cyc_123", GetRequestID(ctx))
	assert.Equal(t, "cyc_123", GetCycleID(ctx))
	assert.Equal(t, CycleTriggerTimer, GetCycleTrigger(ctx))

	ctx = WithRequestID(ctx, "req_abc")
	assert.Equal(t, "req_abc", GetRequestID(ctx))
	assert.Equal(t, "cyc_123", GetCycleID(ctx))
}
