package tools

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func weatherDefinition() Definition {
	return Definition{
		Name:        "get_current_weather",
		Description: "Get the current weather for a location",
		Parameters: ParameterSchema{
			Properties: []Property{
				{Name: "location", Type: TypeString, Description: "City name"},
				{Name: "format", Type: TypeString, Enum: []string{"celsius", "fahrenheit"}},
			},
			Required: []string{"location"},
		},
	}
}

func TestRegistry_RegisterThenGet(t *testing.T) {
	r := NewRegistry()
	want := weatherDefinition()
	r.Register(want)

	got, ok := r.Get(want.Name)
	if !ok {
		t.Fatalf("Get(%q) not found", want.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "b", Description: "first b"})
	r.Register(Definition{Name: "a"})
	r.Register(Definition{Name: "c"})
	r.Register(Definition{Name: "b", Description: "second b"})

	if got, want := r.Names(), []string{"b", "a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	if r.Len() != 3 {
		t.Errorf("len = %d, want 3", r.Len())
	}
	list := r.List()
	if list[0].Description != "second b" {
		t.Errorf("overwrite should replace in place, got %+v", list[0])
	}
}

func TestRegistry_NamesIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "a"})
	names := r.Names()
	names[0] = "changed"
	if got := r.Names()[0]; got != "a" {
		t.Errorf("registry mutated through Names: %q", got)
	}
}

func TestParameterSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  ParameterSchema
		wantErr string
	}{
		{"valid", weatherDefinition().Parameters, ""},
		{"empty", ParameterSchema{}, ""},
		{
			"empty name",
			ParameterSchema{Properties: []Property{{Type: TypeString}}},
			"property with empty name",
		},
		{
			"duplicate",
			ParameterSchema{Properties: []Property{{Name: "x", Type: TypeString}, {Name: "x", Type: TypeNumber}}},
			`duplicate property "x"`,
		},
		{
			"unknown type",
			ParameterSchema{Properties: []Property{{Name: "x", Type: "date"}}},
			`property "x" has unsupported type "date"`,
		},
		{
			"undeclared required",
			ParameterSchema{Properties: []Property{{Name: "x", Type: TypeString}}, Required: []string{"y"}},
			`required parameter "y" is not declared in properties`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParameterSchema_JSONSchema(t *testing.T) {
	got := weatherDefinition().Parameters.JSONSchema()
	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string", "description": "City name"},
			"format":   map[string]any{"type": "string", "enum": []string{"celsius", "fahrenheit"}},
		},
		"required": []string{"location"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v\nwant %#v", got, want)
	}

	empty := ParameterSchema{}.JSONSchema()
	if _, ok := empty["required"]; ok {
		t.Error("required should be omitted when empty")
	}
	if props, ok := empty["properties"].(map[string]any); !ok || len(props) != 0 {
		t.Errorf("properties = %#v, want empty map", empty["properties"])
	}
}

func TestDefinition_CheckArguments(t *testing.T) {
	def := weatherDefinition()

	if err := def.CheckArguments(map[string]any{"location": "Paris"}); err != nil {
		t.Fatalf("valid arguments: %v", err)
	}

	err := def.CheckArguments(map[string]any{"format": "celsius"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want *ValidationError", err)
	}
	if vErr.Tool != "get_current_weather" || vErr.Param != "location" {
		t.Errorf("error fields = %+v", vErr)
	}
	want := "Missing required parameter 'location' for tool 'get_current_weather'"
	if vErr.Error() != want {
		t.Errorf("message = %q, want %q", vErr.Error(), want)
	}

	if err := def.CheckArguments(nil); err == nil {
		t.Error("nil arguments should miss the required parameter")
	}
}

func TestToLLMDefinitions(t *testing.T) {
	defs := []Definition{weatherDefinition(), {Name: "list_available_services", Description: "List services"}}
	got := ToLLMDefinitions(defs)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "get_current_weather" || got[1].Name != "list_available_services" {
		t.Errorf("order not kept: %+v", got)
	}
	if !reflect.DeepEqual(got[0].Parameters, defs[0].Parameters.JSONSchema()) {
		t.Errorf("parameters = %#v", got[0].Parameters)
	}
}
