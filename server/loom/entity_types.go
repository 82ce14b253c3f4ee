package loom

// Abstract categories of the entity-type hierarchy. Concrete types resolve to
// a category by walking their ancestry.
const (
	AbstractKnowledge = "Knowledge-Object"
	AbstractContainer = "Container"
	AbstractInternal  = "Internal-Object"
)

// Marker and special entity types referenced by authorization rules.
const (
	// DeleteOperationType is the trash-entry marker type: targeting it is an
	// operation on already-deleted data and is exempted from the
	// must-be-knowledge check.
	DeleteOperationType = "DeleteOperation"

	// VocabularyType entries are shared reference data and are never a valid
	// bulk-operation target.
	VocabularyType = "Vocabulary"

	// NotificationType is the only valid target of USER-scoped tasks.
	NotificationType = "Notification"
)

// entityAncestry maps each registered concrete or abstract type to its direct
// parents. Kept small on purpose: the platform registers its full schema at
// startup through RegisterEntityType; this core only needs the portion its
// own records and tests touch.
var entityAncestry = map[string][]string{
	AbstractContainer: {AbstractKnowledge},

	"Report":       {AbstractContainer},
	"Grouping":     {AbstractContainer},
	"Note":         {AbstractContainer},
	"Observation":  {AbstractKnowledge},
	"Indicator":    {AbstractKnowledge},
	"Artifact":     {AbstractKnowledge},
	"Relationship": {AbstractKnowledge},

	VocabularyType:           {AbstractInternal},
	NotificationType:         {AbstractInternal},
	DeleteOperationType:      {AbstractInternal},
	BackgroundTaskEntityType: {AbstractInternal},
	RetentionRuleEntityType:  {AbstractInternal},
}

// RegisterEntityType adds a concrete type and its parents to the ancestry
// registry. Intended for platform startup; not safe for concurrent use with
// lookups.
func RegisterEntityType(name string, parents ...string) {
	entityAncestry[name] = parents
}

// IsTypeOf reports whether entityType equals ancestor or resolves to it by
// walking the ancestry registry.
func IsTypeOf(entityType, ancestor string) bool {
	if entityType == ancestor {
		return true
	}
	for _, p := range entityAncestry[entityType] {
		if IsTypeOf(p, ancestor) {
			return true
		}
	}
	return false
}

// IsKnowledgeType reports whether the type resolves to the knowledge
// category.
func IsKnowledgeType(entityType string) bool {
	return IsTypeOf(entityType, AbstractKnowledge)
}
