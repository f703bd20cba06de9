// Package domain contains core domain types for the WorkTab API.
package domain

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the extension user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the model.
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message exchange unit.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsConversational reports whether the turn may be forwarded to the model.
func (t ChatTurn) IsConversational() bool {
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// ChatRequest holds the decoded inputs of one chat turn.
type ChatRequest struct {
	Message string
	History []ChatTurn
	Context WorkspaceContext
	Caller  Identity
}

// ActionDirective is a client-side operation requested by the model through
// an <action:TYPE:PARAMS> marker.
type ActionDirective struct {
	Type   string `json:"type"`
	Params any    `json:"params"`
}

// DecodeHistory converts loosely typed history items into chat turns, one
// turn per item. Items that are not objects become empty turns and a
// non-string role becomes empty, so they still occupy a slot in the history
// window and are dropped by the role filter afterwards. Content of any type
// is coerced to a string; a missing content field is empty.
func DecodeHistory(items []any) []ChatTurn {
	turns := make([]ChatTurn, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			turns = append(turns, ChatTurn{})
			continue
		}
		role, _ := m["role"].(string)
		turn := ChatTurn{Role: Role(role)}
		if content, ok := m["content"]; ok {
			turn.Content = Stringify(content)
		}
		turns = append(turns, turn)
	}
	return turns
}

// Stringify returns the string representation of a JSON-decoded value.
// Objects and arrays are rendered as compact JSON and null as "null".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return cast.ToString(val)
	}
}
