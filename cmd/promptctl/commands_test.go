package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPromptFromYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ctx.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
workspaceCount: 1
tabCount: 7
workspaces:
  - id: ws_9
    name: Research
    tabCount: 7
    color: blue-500
`), 0o600))
	jsonPath := filepath.Join(dir, "ctx.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"workspaceCount":1,"tabCount":7,"workspaces":[{"id":"ws_9","name":"Research","tabCount":7,"color":"blue-500"}]}`), 0o600))

	fromYAML, err := run(t, "", "prompt", "--context", yamlPath)
	require.NoError(t, err)
	assert.Contains(t, fromYAML, `"Research" (ID: ws_9, 7 tabs, color: blue-500)`)

	fromJSON, err := run(t, "", "prompt", "-c", jsonPath)
	require.NoError(t, err)
	assert.Equal(t, fromYAML, fromJSON)
}

func TestPromptWithoutContext(t *testing.T) {
	out, err := run(t, "", "prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "<action:")
}

func TestPromptBadContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := run(t, "", "prompt", "--context", path)
	assert.Error(t, err)

	_, err = run(t, "", "prompt", "--context", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseFromStdin(t *testing.T) {
	out, err := run(t, `Done. <action:close_tabs:{"urls":["https://a.example"]}> <action:oops:{bad}>`, "parse")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Done.", got["response"])
	assert.Equal(t, float64(2), got["directives"])
	assert.Equal(t, []any{"{bad}"}, got["malformed"])
	assert.Equal(t, []any{
		map[string]any{"type": "close_tabs", "params": map[string]any{"urls": []any{"https://a.example"}}},
		map[string]any{"type": "oops", "params": map[string]any{"value": "{bad}"}},
	}, got["actions"])
}

func TestParseFromFileWithoutDirectives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte("  just words  "), 0o600))

	out, err := run(t, "", "parse", "--file", path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "just words", got["response"])
	assert.Equal(t, []any{}, got["actions"])
	assert.NotContains(t, got, "malformed")
}

func TestPolicyFormats(t *testing.T) {
	out, err := run(t, "", "policy")
	require.NoError(t, err)
	var fromYAML map[string]map[string]int
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, 3, fromYAML["FREE"]["hourly"])
	assert.Equal(t, 5000, fromYAML["PRO"]["monthly"])

	out, err = run(t, "", "policy", "--format", "json")
	require.NoError(t, err)
	var fromJSON map[string]map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &fromJSON))
	assert.Equal(t, fromYAML, fromJSON)

	_, err = run(t, "", "policy", "--format", "xml")
	assert.Error(t, err)
}
