// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package scenario

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var (
	schemaOnce sync.Once
	schemaCmpl *jschema.Schema
	schemaErr  error
)

// GenerateSchema generates the scenario JSON Schema from the Go types.
// cmd/gen-schema writes the result to schemas/scenario.schema.json for
// editor integration; validation here compiles it in-process.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Scenario{})
	schema.Title = "HoloSim Scenario"
	schema.Description = "Schema for holosim scenario files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCENARIO_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates scenario YAML against the generated JSON Schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code("SCENARIO_INVALID").Errorf("scenario data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SCENARIO_PARSE_FAILED").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(convertToJSONTypes(doc)); err != nil {
		return oops.Code("SCENARIO_INVALID").Wrap(err)
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaCmpl, schemaErr = compileSchema()
	})
	return schemaCmpl, schemaErr
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code("SCENARIO_SCHEMA_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("scenario.schema.json", doc); err != nil {
		return nil, oops.Code("SCENARIO_SCHEMA_FAILED").Wrap(err)
	}
	sch, err := c.Compile("scenario.schema.json")
	if err != nil {
		return nil, oops.Code("SCENARIO_SCHEMA_FAILED").Wrap(err)
	}
	return sch, nil
}

// convertToJSONTypes normalizes YAML-decoded values into the JSON-compatible
// shapes the schema validator expects.
func convertToJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = convertToJSONTypes(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = convertToJSONTypes(item)
		}
		return result
	default:
		return val
	}
}
