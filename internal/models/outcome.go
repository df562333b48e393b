package models

// Status tags returned to the webhook caller. Every reconciliation branch,
// including the ones that touch the broker zero times, maps to exactly one
// of these so "done, nothing needed" is distinguishable from "order placed".
const (
	StatusEntryExecuted        = "entry_executed"
	StatusPositionsClosed      = "positions_closed_fully"
	StatusPartialCloseExecuted = "partial_close_executed"
	StatusNoPositionToClose    = "no_position_to_close"
	StatusDuplicateIgnored     = "duplicate_ignored"
	StatusAmendedStopLimit     = "amended stop/limit"
	StatusIgnoredPositionOpen  = "ignored_position_exists"
	StatusUnknownIntent        = "unknown_intent"
)

// Outcome is the engine's verdict for one signal.
type Outcome struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
