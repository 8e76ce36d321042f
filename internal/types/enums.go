package types

// Rule identifies a worksite safety rule. The string values are persisted in
// holds_log.trigger_rule and must not change.
type Rule string

const (
	RuleLightning        Rule = "LIGHTNING_30_30"
	RuleHighWindGeneral  Rule = "HIGH_WIND_GENERAL"
	RuleHighWindMaterial Rule = "HIGH_WIND_MATERIAL_HANDLING"
	RuleExtremeHeat      Rule = "EXTREME_HEAT"
)

// RulePriority lists the rules from highest to lowest priority. When several
// rules are breached by one snapshot only the first in this order is reported.
var RulePriority = []Rule{
	RuleLightning,
	RuleHighWindGeneral,
	RuleHighWindMaterial,
	RuleExtremeHeat,
}

// ThresholdMode selects which threshold set the engine evaluates against.
type ThresholdMode string

const (
	ThresholdModeStandard ThresholdMode = "standard"
	ThresholdModeDemo     ThresholdMode = "demo"
)

// MessageType categorizes a notification log entry.
type MessageType string

const (
	MessageTypeHold     MessageType = "hold"
	MessageTypeAllClear MessageType = "all_clear"
	MessageTypeCustom   MessageType = "custom"
)

// NotificationStatus is the outcome of a single delivery attempt.
type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// IssuedBy records who opened a hold.
type IssuedBy string

const (
	IssuedByAuto   IssuedBy = "auto"
	IssuedByManual IssuedBy = "manual"
)

// CycleTrigger records what fired a poll cycle.
type CycleTrigger string

const (
	CycleTriggerStartup CycleTrigger = "startup"
	CycleTriggerTimer   CycleTrigger = "timer"
	CycleTriggerManual  CycleTrigger = "manual"
)
