package loom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTypeOf(t *testing.T) {
	require.True(t, IsTypeOf("Report", AbstractContainer))
	require.True(t, IsTypeOf("Report", AbstractKnowledge))
	require.True(t, IsTypeOf("Indicator", AbstractKnowledge))
	require.True(t, IsTypeOf(AbstractKnowledge, AbstractKnowledge))

	require.False(t, IsTypeOf("Indicator", AbstractContainer))
	require.False(t, IsTypeOf(NotificationType, AbstractKnowledge))
	require.False(t, IsTypeOf("Unregistered", AbstractKnowledge))
}

func TestIsKnowledgeType(t *testing.T) {
	require.True(t, IsKnowledgeType("Report"))
	require.True(t, IsKnowledgeType("Relationship"))
	require.False(t, IsKnowledgeType(VocabularyType))
	require.False(t, IsKnowledgeType(DeleteOperationType))
	require.False(t, IsKnowledgeType(BackgroundTaskEntityType))
}

func TestRegisterEntityType(t *testing.T) {
	RegisterEntityType("Campaign", AbstractKnowledge)
	require.True(t, IsKnowledgeType("Campaign"))
}

func TestUserHasCapability(t *testing.T) {
	u := &User{ID: "u1", Capabilities: []string{CapabilityModifyKnowledge}}
	require.True(t, u.HasCapability(CapabilityModifyKnowledge))
	require.False(t, u.HasCapability(CapabilityDeleteKnowledge))

	bypass := &User{ID: "u2", Capabilities: []string{CapabilityBypass}}
	require.True(t, bypass.HasCapability(CapabilityDeleteKnowledge))
}
