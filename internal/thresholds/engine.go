// Package thresholds evaluates weather snapshots against the occupational
// safety rules that open and clear worksite holds.
//
// Rules are checked in fixed priority order (lightning, high wind general,
// high wind material handling, extreme heat). Only the highest-priority
// breach is reported for a snapshot; lower-priority breaches present in the
// same snapshot are dropped and re-evaluated independently next cycle, which
// keeps a site to a single open hold with a single trigger rule.
//
// Breaches are inclusive (value >= threshold) and clears are exclusive
// (value < threshold) with no hysteresis band between them.
package thresholds

import (
	"fmt"
	"time"

	"clearskies/internal/types"
)

// LightningHoldMinutes is the fixed stand-down for the 30/30 lightning rule.
const LightningHoldMinutes = 30

// Thresholds is one selectable set of rule limits.
type Thresholds struct {
	LightningPct        float64
	HighWindGeneralMph  float64
	HighWindMaterialMph float64
	ExtremeHeatC        float64
}

// StandardThresholds are the production OSHA-derived limits.
var StandardThresholds = Thresholds{
	LightningPct:        40,
	HighWindGeneralMph:  40,
	HighWindMaterialMph: 30,
	ExtremeHeatC:        38,
}

// DemoThresholds are reduced limits for exercising the hold workflow on a
// calm day. Selecting them changes values only, never the algorithm.
var DemoThresholds = Thresholds{
	LightningPct:        5,
	HighWindGeneralMph:  3,
	HighWindMaterialMph: 2,
	ExtremeHeatC:        10,
}

// ForMode returns the threshold set for a configured mode.
func ForMode(mode types.ThresholdMode) (Thresholds, error) {
	switch mode {
	case types.ThresholdModeStandard, "":
		return StandardThresholds, nil
	case types.ThresholdModeDemo:
		return DemoThresholds, nil
	default:
		return Thresholds{}, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown threshold mode %q", mode), nil)
	}
}

var ruleLabels = map[types.Rule]string{
	types.RuleLightning:        "Lightning / Thunderstorm (OSHA 30/30 Rule)",
	types.RuleHighWindGeneral:  "High Wind — General (≥40 mph, OSHA 1926.968)",
	types.RuleHighWindMaterial: "High Wind — Material Handling (≥30 mph)",
	types.RuleExtremeHeat:      "Extreme Heat (Apparent temp ≥38°C / 100°F)",
}

// Label returns the human-readable name of a rule for alert text.
// Unknown rules render as their identifier.
func Label(rule types.Rule) string {
	if l, ok := ruleLabels[rule]; ok {
		return l
	}
	return string(rule)
}

// Engine evaluates snapshots against a threshold set. It holds no mutable
// state; Evaluate and ShouldClear are safe for concurrent use and return the
// same answer for the same inputs (ShouldClear given the same clock reading).
type Engine struct {
	thresholds Thresholds
	clock      types.Clock
}

// NewEngine creates an Engine. A nil clock uses types.RealClock.
func NewEngine(t Thresholds, clock types.Clock) *Engine {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Engine{thresholds: t, clock: clock}
}

// Thresholds returns the active threshold set.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate returns the highest-priority breach in w, or nil when every
// metric is below its threshold. Wind rules use gust speed only.
func (e *Engine) Evaluate(w types.WeatherSnapshot) *types.Breach {
	for _, rule := range types.RulePriority {
		value, threshold := e.measure(rule, w)
		if value >= threshold {
			return e.breach(rule, value, threshold)
		}
	}
	return nil
}

// ShouldClear decides whether an open hold may be cleared.
//
// With a recorded duration the decision depends only on elapsed time since
// triggeredAt. Without one it depends on the rule's own metric dropping
// strictly below its threshold. Unknown rules never clear on weather.
func (e *Engine) ShouldClear(rule types.Rule, w types.WeatherSnapshot, triggeredAt time.Time, durationMinutes *int) bool {
	if durationMinutes != nil {
		elapsed := e.clock.Now().Sub(triggeredAt)
		return elapsed >= time.Duration(*durationMinutes)*time.Minute
	}

	if !isKnownRule(rule) {
		return false
	}
	value, threshold := e.measure(rule, w)
	return value < threshold
}

// measure returns the snapshot value and configured threshold for a rule.
func (e *Engine) measure(rule types.Rule, w types.WeatherSnapshot) (value, threshold float64) {
	switch rule {
	case types.RuleLightning:
		return float64(w.LightningProbabilityPct), e.thresholds.LightningPct
	case types.RuleHighWindGeneral:
		return w.WindGustMph, e.thresholds.HighWindGeneralMph
	case types.RuleHighWindMaterial:
		return w.WindGustMph, e.thresholds.HighWindMaterialMph
	case types.RuleExtremeHeat:
		return w.ApparentTempC, e.thresholds.ExtremeHeatC
	}
	return 0, 0
}

func (e *Engine) breach(rule types.Rule, value, threshold float64) *types.Breach {
	b := &types.Breach{Rule: rule, Value: value, Threshold: threshold}
	if rule == types.RuleLightning {
		d := LightningHoldMinutes
		b.DurationMinutes = &d
	}
	return b
}

func isKnownRule(rule types.Rule) bool {
	_, ok := ruleLabels[rule]
	return ok
}
