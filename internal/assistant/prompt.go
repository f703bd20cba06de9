package assistant

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/worktab/worktab-api/internal/domain"
)

const (
	maxListedWorkspaces = 10
	maxListedTabs       = 10
	maxListedWarnings   = 5
	maxListedHeavyTabs  = 5
)

const promptPreamble = `You are WorkTab AI Assistant, a helpful assistant for the WorkTab browser extension.

WorkTab helps users organize browser tabs into workspaces. You can help users:
- Organize their tabs into workspaces
- Suggest workspace names based on tabs
- Answer questions about WorkTab features
- Provide productivity tips for tab management
- Help with workspace organization

Current user context:
`

// actionCatalogue documents the directive grammar parsed by ParseDirectives.
const actionCatalogue = `

AVAILABLE ACTIONS (use these when user requests actions):
You can execute actions by including action markers in your response. Format: <action:TYPE:PARAMS>

Available action types:
1. close_workspace_tabs - Close all tabs in a workspace
   Format: <action:close_workspace_tabs:{"workspaceId":"ws_123"}>
   Note: Use the workspaceId from the workspaces list above

2. delete_workspace - Delete a workspace
   Format: <action:delete_workspace:{"workspaceId":"ws_123"}>
   Note: Use the workspaceId from the workspaces list above

3. create_workspace - Create a new workspace
   Format: <action:create_workspace:{"name":"Workspace Name","color":"blue-500","tabs":[]}>
   Colors: blue-500, green-500, red-500, yellow-500, purple-500, pink-500, indigo-500, sky-500

4. close_tabs - Close specific tabs by URL
   Format: <action:close_tabs:{"urls":["https://example.com"]}>

5. get_health_dashboard - Get health dashboard data (already included if available)

When user requests an action:
- Confirm the action in your response text
- Include the action marker at the end
- Be specific about what will happen

Example response:
"I'll close all tabs in the 'Research' workspace for you. <action:close_workspace_tabs:{"workspaceId":"ws_123"}>"

Be concise, helpful, and action-oriented. When suggesting actions, be specific.
If the user asks about organizing tabs, provide concrete suggestions based on their current tabs.
If they ask about WorkTab features, explain clearly and provide examples.
Keep responses under 300 words unless the user asks for detailed information.`

// BuildSystemPrompt renders the system instruction for one turn. The output
// depends only on wc.
func BuildSystemPrompt(wc domain.WorkspaceContext) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	fmt.Fprintf(&b, "- User has %d %s\n", wc.WorkspaceCount, plural(wc.WorkspaceCount, "workspace"))
	fmt.Fprintf(&b, "- User has %d %s\n", wc.TabCount, plural(wc.TabCount, "open tab"))

	writeWorkspaces(&b, wc.Workspaces)
	writeOpenTabs(&b, wc.OpenTabs)
	if wc.HealthData != nil {
		writeHealth(&b, wc.HealthData)
	}

	b.WriteString(actionCatalogue)
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func writeWorkspaces(b *strings.Builder, workspaces []domain.Workspace) {
	if len(workspaces) == 0 {
		return
	}
	b.WriteString("\nCurrent workspaces (use workspaceId in actions):\n")
	for i, ws := range workspaces[:min(len(workspaces), maxListedWorkspaces)] {
		fmt.Fprintf(b, "  %d. \"%s\" (ID: %s, %d tabs, color: %s)\n", i+1, ws.Name, ws.ID, ws.TabCount, ws.Color)
	}
	if extra := len(workspaces) - maxListedWorkspaces; extra > 0 {
		fmt.Fprintf(b, "  ... and %d more workspaces\n", extra)
	}
	b.WriteString("\nIMPORTANT: When executing actions on workspaces, use the workspaceId from the list above.\n")
}

func writeOpenTabs(b *strings.Builder, tabs []domain.OpenTab) {
	if len(tabs) == 0 {
		return
	}
	b.WriteString("\nOpen tabs (sample):\n")
	for i, tab := range tabs[:min(len(tabs), maxListedTabs)] {
		fmt.Fprintf(b, "  %d. %s (%s)\n", i+1, tab.Title, tab.Domain)
	}
	if extra := len(tabs) - maxListedTabs; extra > 0 {
		fmt.Fprintf(b, "  ... and %d more tabs\n", extra)
	}
}

func writeHealth(b *strings.Builder, hd *domain.HealthData) {
	b.WriteString("\n\nTab Health Dashboard Data (use this to provide performance tips):")
	if hd.Summary != nil {
		fmt.Fprintf(b, "\n- Total Memory: %s MB", numberOrNA(hd.Summary.TotalMemory))
		fmt.Fprintf(b, "\n- Average Health Score: %s/100", numberOrNA(hd.Summary.AverageHealth))
		fmt.Fprintf(b, "\n- Warnings: %d", len(hd.Warnings))
	}

	if len(hd.Warnings) > 0 {
		b.WriteString("\nPerformance Warnings:")
		for i, w := range hd.Warnings[:min(len(hd.Warnings), maxListedWarnings)] {
			fmt.Fprintf(b, "\n  %d. %s", i+1, w.Message)
		}
		b.WriteString("\n\nWhen users ask about performance or browser slowdown, reference these warnings and suggest:")
		b.WriteString("\n- Closing unused tabs")
		b.WriteString("\n- Suspending inactive tabs")
		b.WriteString("\n- Using workspaces to organize tabs")
		b.WriteString("\n- Checking the Health Dashboard for specific issues")
	}

	if len(hd.Tabs) > 0 {
		b.WriteString("\n\nHigh Memory Tabs (top 5):")
		for i, tab := range heaviestTabs(hd.Tabs, maxListedHeavyTabs) {
			fmt.Fprintf(b, "\n  %d. %s - %s MB", i+1, tab.Label(), formatNumber(tab.Memory))
		}
	}
}

// heaviestTabs returns up to n tabs by descending memory. Ties keep input
// order. The input slice is not modified.
func heaviestTabs(tabs []domain.TabHealth, n int) []domain.TabHealth {
	sorted := slices.Clone(tabs)
	slices.SortStableFunc(sorted, func(a, b domain.TabHealth) int {
		return cmp.Compare(b.Memory, a.Memory)
	})
	return sorted[:min(len(sorted), n)]
}

// numberOrNA renders zero as N/A, matching how the extension reports
// missing measurements.
func numberOrNA(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return formatNumber(v)
}

// formatNumber prints v without a trailing ".0" for whole numbers.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
