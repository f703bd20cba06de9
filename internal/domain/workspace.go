package domain

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// WorkspaceContext is the caller-supplied snapshot of the user's browser
// state. It is trusted as-is: counts are not reconciled with list lengths.
type WorkspaceContext struct {
	Workspaces     []Workspace `json:"workspaces"`
	OpenTabs       []OpenTab   `json:"openTabs"`
	WorkspaceCount int         `json:"workspaceCount"`
	TabCount       int         `json:"tabCount"`
	HealthData     *HealthData `json:"healthData"`
}

// Workspace is a named group of tabs.
type Workspace struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	TabCount int    `json:"tabCount"`
}

// OpenTab is a browser tab currently open.
type OpenTab struct {
	Title  string `json:"title"`
	Domain string `json:"domain"`
}

// HealthData is the tab health dashboard snapshot.
type HealthData struct {
	Summary  *HealthSummary  `json:"summary"`
	Warnings []HealthWarning `json:"warnings"`
	Tabs     []TabHealth     `json:"tabs"`
}

// HealthSummary aggregates memory and health scores.
type HealthSummary struct {
	TotalMemory   float64 `json:"totalMemory"`
	AverageHealth float64 `json:"averageHealth"`
}

// HealthWarning is a single performance warning.
type HealthWarning struct {
	Message string `json:"message"`
}

// TabHealth is the memory footprint of one tab, in MB.
type TabHealth struct {
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Memory float64 `json:"memory"`
}

// Label returns the tab title, falling back to its URL.
func (t TabHealth) Label() string {
	if t.Title != "" {
		return t.Title
	}
	return t.URL
}

// DecodeWorkspaceContext decodes a JSON-decoded context object. Scalars sent
// with the wrong JSON type (e.g. "3" for a count) are converted rather than
// rejected. A value that cannot be converted decodes to its zero value and
// list elements that are not objects are dropped, so one bad field never
// costs the rest of the context.
func DecodeWorkspaceContext(raw map[string]any) (WorkspaceContext, error) {
	var ctx WorkspaceContext
	if raw == nil {
		return ctx, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(lenientHook),
		Result:           &ctx,
	})
	if err != nil {
		return ctx, fmt.Errorf("create context decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return WorkspaceContext{}, fmt.Errorf("decode workspace context: %w", err)
	}
	return ctx, nil
}

func lenientHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(data)
		if err != nil {
			return reflect.Zero(to).Interface(), nil
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(data)
		if err != nil {
			return reflect.Zero(to).Interface(), nil
		}
		return f, nil
	case reflect.String:
		s, err := cast.ToStringE(data)
		if err != nil {
			return "", nil
		}
		return s, nil
	case reflect.Struct:
		if !isObject(data) {
			return map[string]any{}, nil
		}
	case reflect.Ptr:
		if to.Elem().Kind() == reflect.Struct && !isObject(data) {
			return nil, nil
		}
	case reflect.Slice:
		items, ok := data.([]any)
		if !ok {
			return []any{}, nil
		}
		if to.Elem().Kind() != reflect.Struct {
			return items, nil
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if isObject(item) {
				kept = append(kept, item)
			}
		}
		return kept, nil
	}
	return data, nil
}

func isObject(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Map
}
