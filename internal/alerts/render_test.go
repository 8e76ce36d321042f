package alerts

import (
	"testing"
	"time"

	"clearskies/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestRenderHoldMessage(t *testing.T) {
	issued := time.Date(2026, 7, 14, 21, 5, 0, 0, time.UTC)
	v := types.VehiclePresence{DeviceID: "b1", DeviceName: "Truck 7"}
	d := 30

	got := RenderHoldMessage("North Yard", types.RuleLightning, &d, v, issued)
	want := "⚠️ WORK HOLD — North Yard\n" +
		"Reason: Lightning / Thunderstorm (OSHA 30/30 Rule)\n" +
		"Work must stop for at least 30 minutes.\n" +
		"Vehicle: Truck 7\n" +
		"Issued by ClearSkies at 9:05 PM UTC"
	assert.Equal(t, want, got)

	again := RenderHoldMessage("North Yard", types.RuleLightning, &d, v, issued)
	assert.Equal(t, got, again)
}

func TestRenderHoldMessage_OpenEnded(t *testing.T) {
	issued := time.Date(2026, 7, 14, 9, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	got := RenderHoldMessage("North Yard", types.RuleExtremeHeat, nil, types.VehiclePresence{DeviceID: "b9"}, issued)

	assert.Contains(t, got, "Work must stop until conditions improve.")
	assert.Contains(t, got, "Vehicle: b9", "device id stands in for a missing name")
	assert.Contains(t, got, "1:00 PM UTC", "issue time is rendered in UTC")
}

func TestRenderAllClearMessage(t *testing.T) {
	got := RenderAllClearMessage("North Yard", types.RuleHighWindGeneral, types.VehiclePresence{DeviceID: "b1", DeviceName: "Truck 7"})
	want := "✅ ALL CLEAR — North Yard\n" +
		"High Wind — General (≥40 mph, OSHA 1926.968) conditions have passed.\n" +
		"Work may resume. Please confirm with your site supervisor.\n" +
		"Vehicle: Truck 7"
	assert.Equal(t, want, got)
}

func TestRenderUnknownRuleUsesIdentifier(t *testing.T) {
	got := RenderAllClearMessage("Yard", types.Rule("MANUAL_STOP"), types.VehiclePresence{DeviceName: "T"})
	assert.Contains(t, got, "MANUAL_STOP conditions have passed.")
}
