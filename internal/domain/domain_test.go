package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHistory(t *testing.T) {
	items := []any{
		map[string]any{"role": "user", "content": "hi"},
		"not an object",
		map[string]any{"role": 7, "content": map[string]any{"a": float64(1)}},
		map[string]any{"role": "assistant", "content": float64(42)},
		map[string]any{"role": "assistant"},
		map[string]any{"role": "user", "content": nil},
	}

	assert.Equal(t, []ChatTurn{
		{Role: RoleUser, Content: "hi"},
		{},
		{Role: "", Content: `{"a":1}`},
		{Role: RoleAssistant, Content: "42"},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleUser, Content: "null"},
	}, DecodeHistory(items))
}

func TestIsConversational(t *testing.T) {
	assert.True(t, ChatTurn{Role: RoleUser}.IsConversational())
	assert.True(t, ChatTurn{Role: RoleAssistant}.IsConversational())
	assert.False(t, ChatTurn{Role: "system"}.IsConversational())
	assert.False(t, ChatTurn{}.IsConversational())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, "x", Stringify("x"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, `[1,"a"]`, Stringify([]any{float64(1), "a"}))
}

func TestDecodeWorkspaceContextCoercesScalars(t *testing.T) {
	wc, err := DecodeWorkspaceContext(map[string]any{
		"workspaceCount": "2",
		"tabCount":       float64(5),
		"workspaces": []any{
			map[string]any{"id": "ws_1", "name": "Work", "tabCount": "3", "color": "red-500"},
		},
		"openTabs": []any{map[string]any{"title": "Docs", "domain": "example.com"}},
		"healthData": map[string]any{
			"summary": map[string]any{"totalMemory": "512.5", "averageHealth": float64(80)},
			"tabs":    []any{map[string]any{"url": "https://a.example", "memory": float64(200)}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, wc.WorkspaceCount)
	assert.Equal(t, 5, wc.TabCount)
	assert.Equal(t, []Workspace{{ID: "ws_1", Name: "Work", TabCount: 3, Color: "red-500"}}, wc.Workspaces)
	assert.Equal(t, []OpenTab{{Title: "Docs", Domain: "example.com"}}, wc.OpenTabs)
	require.NotNil(t, wc.HealthData)
	assert.Equal(t, 512.5, wc.HealthData.Summary.TotalMemory)
	assert.Equal(t, "https://a.example", wc.HealthData.Tabs[0].Label())
}

func TestDecodeWorkspaceContextKeepsGoodValues(t *testing.T) {
	wc, err := DecodeWorkspaceContext(map[string]any{
		"workspaceCount": float64(2),
		"tabCount":       "lots",
		"workspaces": []any{
			map[string]any{"id": "ws_research", "name": "Research", "tabCount": float64(5)},
			map[string]any{"id": "ws_2", "tabCount": "unknown", "color": map[string]any{"hex": "#fff"}},
			"not a workspace",
		},
		"openTabs": map[string]any{"title": "wrong shape"},
		"healthData": map[string]any{
			"summary":  "n/a",
			"warnings": []any{map[string]any{"message": "Heavy tab"}, float64(3)},
			"tabs": []any{
				map[string]any{"title": "Video", "memory": "12MB"},
				map[string]any{"title": "Mail", "memory": float64(80)},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, wc.WorkspaceCount)
	assert.Equal(t, 0, wc.TabCount)
	assert.Equal(t, []Workspace{
		{ID: "ws_research", Name: "Research", TabCount: 5},
		{ID: "ws_2"},
	}, wc.Workspaces)
	assert.Empty(t, wc.OpenTabs)
	require.NotNil(t, wc.HealthData)
	assert.Nil(t, wc.HealthData.Summary)
	assert.Equal(t, []HealthWarning{{Message: "Heavy tab"}}, wc.HealthData.Warnings)
	assert.Equal(t, []TabHealth{{Title: "Video"}, {Title: "Mail", Memory: 80}}, wc.HealthData.Tabs)
}

func TestDecodeWorkspaceContextNil(t *testing.T) {
	wc, err := DecodeWorkspaceContext(nil)
	require.NoError(t, err)
	assert.Equal(t, WorkspaceContext{}, wc)
}

func TestIdentityTier(t *testing.T) {
	assert.Equal(t, TierFree, Anonymous().Tier())
	assert.Equal(t, TierPro, Identity{ID: "u", IsPro: true}.Tier())
	assert.True(t, Anonymous().IsAnonymous())
	assert.True(t, Identity{}.IsAnonymous())
	assert.False(t, Identity{ID: "u"}.IsAnonymous())
}
