package alerts

import (
	"fmt"
	"strings"
	"time"

	"clearskies/internal/thresholds"
	"clearskies/internal/types"
)

const issueTimeLayout = "3:04 PM"

// DurationText is the stand-down phrase used in hold messages.
func DurationText(durationMinutes *int) string {
	if durationMinutes != nil {
		return fmt.Sprintf("Work must stop for at least %d minutes.", *durationMinutes)
	}
	return "Work must stop until conditions improve."
}

// RenderHoldMessage renders the in-cab hold notice for one vehicle. The
// output depends only on its arguments.
func RenderHoldMessage(siteName string, rule types.Rule, durationMinutes *int, vehicle types.VehiclePresence, issuedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ WORK HOLD — %s\n", siteName)
	fmt.Fprintf(&b, "Reason: %s\n", thresholds.Label(rule))
	b.WriteString(DurationText(durationMinutes))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Vehicle: %s\n", vehicleName(vehicle))
	fmt.Fprintf(&b, "Issued by ClearSkies at %s UTC", issuedAt.UTC().Format(issueTimeLayout))
	return b.String()
}

// RenderAllClearMessage renders the in-cab all-clear notice for one vehicle.
func RenderAllClearMessage(siteName string, rule types.Rule, vehicle types.VehiclePresence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ ALL CLEAR — %s\n", siteName)
	fmt.Fprintf(&b, "%s conditions have passed.\n", thresholds.Label(rule))
	b.WriteString("Work may resume. Please confirm with your site supervisor.\n")
	fmt.Fprintf(&b, "Vehicle: %s", vehicleName(vehicle))
	return b.String()
}

// renderSupervisorSubject and renderSupervisorBody build the e-mail copy of
// an event. The body lists every vehicle on the frozen presence list.
func renderSupervisorSubject(a Alert, messageType types.MessageType) string {
	if messageType == types.MessageTypeAllClear {
		return fmt.Sprintf("[ClearSkies] All clear: %s", a.SiteName)
	}
	return fmt.Sprintf("[ClearSkies] Work hold: %s (%s)", a.SiteName, thresholds.Label(a.Rule))
}

func renderSupervisorBody(a Alert, messageType types.MessageType, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", a.SiteName)
	fmt.Fprintf(&b, "Rule: %s\n", thresholds.Label(a.Rule))
	if messageType == types.MessageTypeAllClear {
		b.WriteString("Status: all clear, work may resume\n")
	} else {
		fmt.Fprintf(&b, "Status: %s\n", DurationText(a.DurationMinutes))
	}
	fmt.Fprintf(&b, "Hold ID: %s\n", a.HoldID)
	fmt.Fprintf(&b, "Time: %s\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Vehicles on site: %d\n", len(a.Vehicles))
	for _, v := range a.Vehicles {
		if v.DriverName != "" {
			fmt.Fprintf(&b, "  - %s, driver %s\n", vehicleName(v), v.DriverName)
		} else {
			fmt.Fprintf(&b, "  - %s\n", vehicleName(v))
		}
	}
	return b.String()
}

func vehicleName(v types.VehiclePresence) string {
	if v.DeviceName != "" {
		return v.DeviceName
	}
	return v.DeviceID
}
