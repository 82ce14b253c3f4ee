package loom

import "time"

// Audit event enumerations. Values follow the platform's activity stream
// contract.
const (
	ActivityTypeMutation   = "mutation"
	ActivityScopeCreate    = "create"
	ActivityScopeDelete    = "delete"
	ActivityAccessExtended = "extended"
)

// Activity is one audit record describing a user action. Emission is
// fire-and-forget: a failed audit write is logged but never blocks the action
// it describes.
type Activity struct {
	ID          string                 `json:"id" db:"id"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UserID      string                 `json:"user_id" db:"user_id"`
	EventType   string                 `json:"event_type" db:"event_type"`
	EventScope  string                 `json:"event_scope" db:"event_scope"`
	EventAccess string                 `json:"event_access" db:"event_access"`
	Message     string                 `json:"message" db:"message"`
	ContextData map[string]interface{} `json:"context_data" db:"context_data"`
}
