// Package tools implements the runtime for the four research tools the
// reasoning model can invoke: web_search, latest_finder, knowledge_query
// and evaluate_plausibility. Calls are schema-validated, fingerprinted
// for dedup, cached and budgeted per run.
package tools

import (
	"context"
	"errors"
	"fmt"

	"scout/internal/types"
)

var (
	// ErrToolNameEmpty is returned for a tool registered without a name.
	ErrToolNameEmpty = errors.New("tools: tool name is empty")
	// ErrToolExecuteNil is returned for a tool with no execute function.
	ErrToolExecuteNil = errors.New("tools: execute function is nil")
	// ErrToolNotFound names the unknown-tool condition. Run.Execute does
	// not return it; an unknown tool yields a SCHEMA_VALIDATION_ERROR
	// payload instead.
	ErrToolNotFound = errors.New("tools: tool not found")
	// ErrToolAlreadyRegistered is returned for duplicate registration.
	ErrToolAlreadyRegistered = errors.New("tools: tool already registered")
)

// Property describes one parameter in a tool's argument schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	MinLength   int      `json:"minLength,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Items       *Items   `json:"items,omitempty"`
	MinItems    int      `json:"minItems,omitempty"`
}

// Items describes array element schemas.
type Items struct {
	Type string `json:"type"`
}

// Schema defines a tool's argument contract.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc runs a tool against the per-run state. The returned string
// is delivered to the model verbatim as the tool result.
type ExecuteFunc func(ctx context.Context, run *Run, args map[string]any) (string, error)

// Tool is one model-invocable capability.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Execute     ExecuteFunc

	// CountsAgainstWebBudget marks tools limited by max_web_searches.
	CountsAgainstWebBudget bool

	// CacheOnRepeat serves repeated identical calls from the per-run
	// cache instead of refusing them.
	CacheOnRepeat bool
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition renders the tool for the model's tool-calling API.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.MinLength > 0 {
			prop["minLength"] = p.MinLength
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		if p.MinItems > 0 {
			prop["minItems"] = p.MinItems
		}
		props[name] = prop
	}

	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// validateArgs checks args against the schema; the error message names
// every violation so the model can repair its call.
func (t *Tool) validateArgs(args map[string]any) error {
	var issues []string

	for _, req := range t.Schema.Required {
		if _, ok := args[req]; !ok {
			issues = append(issues, fmt.Sprintf("missing required argument %q", req))
		}
	}

	for name, val := range args {
		prop, ok := t.Schema.Properties[name]
		if !ok {
			issues = append(issues, fmt.Sprintf("unknown argument %q", name))
			continue
		}
		if msg := checkProperty(name, prop, val); msg != "" {
			issues = append(issues, msg)
		}
	}

	if len(issues) > 0 {
		return errors.New(joinIssues(issues))
	}
	return nil
}

func checkProperty(name string, prop Property, val any) string {
	switch prop.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return fmt.Sprintf("%q must be a string", name)
		}
		if prop.MinLength > 0 && len(s) < prop.MinLength {
			return fmt.Sprintf("%q must be at least %d characters", name, prop.MinLength)
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
			return fmt.Sprintf("%q must be one of %v", name, prop.Enum)
		}
	case "integer", "number":
		n, ok := asNumber(val)
		if !ok {
			return fmt.Sprintf("%q must be a number", name)
		}
		if prop.Minimum != nil && n < *prop.Minimum {
			return fmt.Sprintf("%q must be >= %v", name, *prop.Minimum)
		}
		if prop.Maximum != nil && n > *prop.Maximum {
			return fmt.Sprintf("%q must be <= %v", name, *prop.Maximum)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Sprintf("%q must be a boolean", name)
		}
	case "array":
		arr, ok := val.([]any)
		if !ok {
			return fmt.Sprintf("%q must be an array", name)
		}
		if prop.MinItems > 0 && len(arr) < prop.MinItems {
			return fmt.Sprintf("%q must have at least %d item(s)", name, prop.MinItems)
		}
		if prop.Items != nil && prop.Items.Type == "string" {
			for i, item := range arr {
				if _, ok := item.(string); !ok {
					return fmt.Sprintf("%q[%d] must be a string", name, i)
				}
			}
		}
	}
	return ""
}

func asNumber(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func joinIssues(issues []string) string {
	out := issues[0]
	for _, issue := range issues[1:] {
		out += "; " + issue
	}
	return out
}
