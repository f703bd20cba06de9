package assistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worktab/worktab-api/internal/domain"
)

func TestDirectiveRoundTrip(t *testing.T) {
	text := `ok <action:close_tabs:{"urls":["http://a"]}>`

	actions := ParseActions(text)
	require.Len(t, actions, 1)
	assert.Equal(t, "close_tabs", actions[0].Type)
	assert.Equal(t, map[string]any{"urls": []any{"http://a"}}, actions[0].Params)

	assert.Equal(t, "ok", StripActionMarkers(text))
}

func TestMalformedParamsFallBackToValue(t *testing.T) {
	text := "<action:create_workspace:not-json>"

	parsed := ParseDirectives(text)
	require.Len(t, parsed, 1)
	assert.True(t, parsed[0].Malformed)
	assert.Equal(t, "not-json", parsed[0].Raw)

	assert.Equal(t, []domain.ActionDirective{
		{Type: "create_workspace", Params: map[string]any{"value": "not-json"}},
	}, ParseActions(text))
	assert.Empty(t, StripActionMarkers(text))
}

func TestNoDirectivesIsIdempotent(t *testing.T) {
	for _, text := range []string{"", "   plain reply  \n", "a < b and c > d", "<actions:are:not>"} {
		assert.Empty(t, ParseActions(text), text)
		assert.Equal(t, StripActionMarkers(text), StripActionMarkers(StripActionMarkers(text)))
	}
	assert.Equal(t, "plain reply", StripActionMarkers("   plain reply  \n"))
}

func TestParseActionsOrderAndTypes(t *testing.T) {
	text := `First <action:delete_workspace:{"workspaceId":"ws_1"}> then ` +
		`<action:close_workspace_tabs:ws_2> and <action:get_health_dashboard:{}> ` +
		`<action:weird:42> <action:nothing:null>`

	actions := ParseActions(text)
	require.Len(t, actions, 5)

	assert.Equal(t, "delete_workspace", actions[0].Type)
	assert.Equal(t, map[string]any{"workspaceId": "ws_1"}, actions[0].Params)

	assert.Equal(t, "close_workspace_tabs", actions[1].Type)
	assert.Equal(t, map[string]any{"value": "ws_2"}, actions[1].Params)

	assert.Equal(t, "get_health_dashboard", actions[2].Type)
	assert.Equal(t, map[string]any{}, actions[2].Params)

	assert.Equal(t, json.Number("42"), actions[3].Params)
	assert.Nil(t, actions[4].Params)

	assert.Equal(t, "First  then  and", StripActionMarkers(text))
}

func TestParamsKeepLargeIntegers(t *testing.T) {
	actions := ParseActions(`<action:close_tabs:{"id":9007199254740993}>`)
	require.Len(t, actions, 1)

	data, err := json.Marshal(actions[0].Params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9007199254740993}`, string(data))
}

func TestTrailingGarbageIsMalformed(t *testing.T) {
	parsed := ParseDirectives(`<action:close_tabs:{"urls":[]} extra>`)
	require.Len(t, parsed, 1)
	assert.True(t, parsed[0].Malformed)
}

func TestStripRemovesMarkersParseIgnores(t *testing.T) {
	text := "before <action:no_params> after"

	assert.Empty(t, ParseActions(text))
	assert.Equal(t, "before  after", StripActionMarkers(text))
}

func TestTypeStopsAtFirstColon(t *testing.T) {
	actions := ParseActions(`<action:close_tabs:{"urls":["https://x.example:8443/a"]}>`)
	require.Len(t, actions, 1)
	assert.Equal(t, "close_tabs", actions[0].Type)
	assert.Equal(t, map[string]any{"urls": []any{"https://x.example:8443/a"}}, actions[0].Params)
}
