package loom

// StoredObject is the minimal resolved view of an object in the store, enough
// for the authorization gate to validate a target's type.
type StoredObject struct {
	ID         string `json:"id" db:"id"`
	InternalID string `json:"internal_id" db:"internal_id"`
	EntityType string `json:"entity_type" db:"entity_type"`
}

// Notification is the resolved view of a user notification, carrying its
// owning user for USER-scope ownership checks.
type Notification struct {
	ID         string `json:"id" db:"id"`
	EntityType string `json:"entity_type" db:"entity_type"`
	UserID     string `json:"user_id" db:"user_id"`
}
