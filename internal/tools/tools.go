// Package tools defines the tool catalog shown to the model: definitions,
// parameter schemas, tool calls, results and the registry holding them.
// Nothing in this package may carry secret material.
package tools

import (
	"fmt"
	"sync"

	"github.com/jkaninda/securetools/internal/llm"
)

// ParamType is the JSON-Schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is one of the supported parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Property describes a single named parameter.
type Property struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string // Optional closed set of allowed values.
}

// ParameterSchema is the object schema of a tool's arguments.
// Properties keep their declaration order.
type ParameterSchema struct {
	Properties []Property
	Required   []string
}

// Property returns the named property.
func (s ParameterSchema) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// IsRequired reports whether name is in the required list.
func (s ParameterSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Validate checks the schema itself: known types, unique names and
// required entries that refer to declared properties.
func (s ParameterSchema) Validate() error {
	seen := make(map[string]bool, len(s.Properties))
	for _, p := range s.Properties {
		if p.Name == "" {
			return fmt.Errorf("property with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate property %q", p.Name)
		}
		seen[p.Name] = true
		if !p.Type.Valid() {
			return fmt.Errorf("property %q has unsupported type %q", p.Name, p.Type)
		}
	}
	for _, r := range s.Required {
		if !seen[r] {
			return fmt.Errorf("required parameter %q is not declared in properties", r)
		}
	}
	return nil
}

// JSONSchema renders the schema in the JSON-Schema subset the model expects.
func (s ParameterSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}
	schema := map[string]any{
		"type":       string(TypeObject),
		"properties": props,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

// Definition is a tool as presented to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  ParameterSchema
}

// CheckArguments verifies that every required parameter is present.
func (d Definition) CheckArguments(args map[string]any) error {
	for _, p := range d.Parameters.Required {
		if _, ok := args[p]; !ok {
			return &ValidationError{
				Tool:    d.Name,
				Param:   p,
				Message: fmt.Sprintf("Missing required parameter '%s' for tool '%s'", p, d.Name),
			}
		}
	}
	return nil
}

// Call is a tool invocation requested by the model.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Malformed bool           `json:"-"` // Arguments could not be decoded.
}

// Result is the sanitized outcome of a tool call.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// Failure builds an unsuccessful result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Content: fmt.Sprintf(format, args...)}
}

// ValidationError reports a malformed tool call. It is recovered locally and
// returned to the model as a tool message.
type ValidationError struct {
	Tool    string
	Param   string // Empty unless a parameter is at fault.
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError for the named tool.
func NewValidationError(tool, format string, args ...any) *ValidationError {
	return &ValidationError{Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// Registry holds tool definitions in insertion order.
// Thread-safe; re-registering a name replaces the definition in place.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register inserts or overwrites a definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def
}

// Get returns the definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions in insertion order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Names returns the registered tool names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ToLLMDefinitions converts definitions into the model's tool format.
func ToLLMDefinitions(defs []Definition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters.JSONSchema(),
		}
	}
	return out
}
