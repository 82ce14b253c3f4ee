package loom

// Capabilities gating the operations of this subsystem. The capability model
// itself (roles, groups, assignment) lives outside this core; here a
// principal is just its id plus the flattened capability set.
const (
	// CapabilityBypass short-circuits every capability check.
	CapabilityBypass = "BYPASS"

	CapabilityManageSettings  = "SETTINGS_MANAGE"
	CapabilityManageAccesses  = "SETTINGS_MANAGE_ACCESSES"
	CapabilityModifyKnowledge = "KNOWLEDGE_UPDATE"
	CapabilityDeleteKnowledge = "KNOWLEDGE_DELETE"
	CapabilityImportKnowledge = "KNOWLEDGE_IMPORT"
)

// User is the principal view consumed by the authorization gate and stamped
// on created records.
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// AutomationUserID identifies the built-in principal that scheduled
// processes act as.
const AutomationUserID = "6a4b4f4a-cf64-4462-8b8f-05a5b0d8f0a0"

// AutomationUser returns the principal stamped on deletions and actions
// performed by the scheduled background processes.
func AutomationUser() *User {
	return &User{
		ID:           AutomationUserID,
		Name:         "automation",
		Capabilities: []string{CapabilityBypass},
	}
}

// HasCapability reports whether the user holds the capability, or BYPASS.
func (u *User) HasCapability(capability string) bool {
	for _, c := range u.Capabilities {
		if c == CapabilityBypass || c == capability {
			return true
		}
	}
	return false
}
