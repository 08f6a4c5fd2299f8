package store

import "strings"

// Store keys per PROTOCOL.md. Per-session keys carry the session id as a
// suffix so one store can host any number of concurrent sessions. Tracking
// keys are global.

const (
	// KeyAvailableForms holds the queue of forms awaiting processing.
	KeyAvailableForms = "tracking_availableForms"
	// KeyHistory holds the ledger of forms that have been worked on.
	KeyHistory = "tracking_history"
	// KeySettings holds the tracking settings document.
	KeySettings = "tracking_settings"
)

const (
	checklistStatePrefix = "checklistState_"
	uiStatePrefix        = "uiState_"
	viewModePrefix       = "viewMode_"
)

// ChecklistStateKey returns the key holding a session's checklist state.
func ChecklistStateKey(sessionID string) string {
	return checklistStatePrefix + sessionID
}

// UIStateKey returns the key holding a session's overlay visibility.
func UIStateKey(sessionID string) string {
	return uiStatePrefix + sessionID
}

// ViewModeKey returns the key holding a session's view mode.
func ViewModeKey(sessionID string) string {
	return viewModePrefix + sessionID
}

// ChecklistStateSession extracts the session id from a checklist state key.
// ok is false when the key is not a checklist state key.
func ChecklistStateSession(key string) (string, bool) {
	return strings.CutPrefix(key, checklistStatePrefix)
}
