package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/worktab/worktab-api/internal/assistant"
	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/ratelimit"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptctl",
		Short: "Inspect the WorkTab assistant prompt and action parser",
		Long: `promptctl renders the system prompt the assistant sends for a workspace
context, parses action directives out of model text, and prints the
rate-limit tier table.

Examples:
  promptctl prompt --context fixtures/context.yaml
  echo 'Done <action:close_tabs:{"urls":[]}>' | promptctl parse
  promptctl policy --format json`,
		SilenceUsage: true,
	}
	root.AddCommand(newPromptCmd(), newParseCmd(), newPolicyCmd())
	return root
}

func newPromptCmd() *cobra.Command {
	var contextPath string

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt for a workspace context",
		Long: `Print the system prompt for a workspace context read from a JSON or
YAML file. Without --context the prompt for an empty context is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wc, err := loadContext(contextPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), assistant.BuildSystemPrompt(wc))
			return err
		},
	}
	cmd.Flags().StringVarP(&contextPath, "context", "c", "", "Workspace context file (.json, .yaml or .yml)")
	return cmd
}

// loadContext decodes a context file into the same shape the chat endpoint
// accepts.
func loadContext(path string) (domain.WorkspaceContext, error) {
	if path == "" {
		return domain.WorkspaceContext{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkspaceContext{}, fmt.Errorf("read context: %w", err)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return domain.WorkspaceContext{}, fmt.Errorf("parse context %s: %w", path, err)
	}
	return domain.DecodeWorkspaceContext(raw)
}

type parseOutput struct {
	Response   string                   `json:"response"`
	Actions    []domain.ActionDirective `json:"actions"`
	Malformed  []string                 `json:"malformed,omitempty"`
	Directives int                      `json:"directives"`
}

func newParseCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse action directives from model output",
		Long: `Read model output from --file or stdin and print the cleaned reply and
the parsed actions as JSON, exactly as the chat endpoint would return them.
Parameters that are not valid JSON are also listed under "malformed".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			text := string(data)

			out := parseOutput{
				Response: assistant.StripActionMarkers(text),
				Actions:  []domain.ActionDirective{},
			}
			for _, d := range assistant.ParseDirectives(text) {
				out.Directives++
				if d.Malformed {
					out.Malformed = append(out.Malformed, d.Raw)
				}
				out.Actions = append(out.Actions, d.Action())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read model output from a file instead of stdin")
	return cmd
}

func newPolicyCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the rate-limit tier table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policies := ratelimit.DefaultPolicies()
			w := cmd.OutOrStdout()

			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(policies)
			case "yaml", "yml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(policies); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported format %q (use yaml or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	return cmd
}
