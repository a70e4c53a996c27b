// ABOUTME: JSON Schema reflection for tool arguments and structured outputs
// ABOUTME: Schemas are reflected from Go structs and compiled once for validation

package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaFor reflects the JSON Schema of T. Fields without omitempty are required.
func SchemaFor[T any]() json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	s.ID = ""

	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("reflecting schema for %T: %v", *new(T), err))
	}
	return data
}

var compiled sync.Map // schema text -> *validator.Schema

func compileSchema(schema json.RawMessage) (*validator.Schema, error) {
	key := string(schema)
	if cached, ok := compiled.Load(key); ok {
		return cached.(*validator.Schema), nil
	}
	s, err := validator.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	compiled.Store(key, s)
	return s, nil
}

// ValidateArgs checks args against schema. An empty schema accepts anything.
func ValidateArgs(schema json.RawMessage, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	s, err := compileSchema(schema)
	if err != nil {
		return err
	}

	if args == nil {
		args = map[string]any{}
	}
	// normalize Go values to their JSON forms
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	return s.Validate(doc)
}
