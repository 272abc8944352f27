// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holosim/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "HoloSim Scenario", doc["title"])
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "format_version")
	assert.Contains(t, props, "entities")
}

func TestValidateSchema_Valid(t *testing.T) {
	assert.NoError(t, ValidateSchema([]byte(validScenario)))
}

func TestValidateSchema_MissingRequiredField(t *testing.T) {
	data := []byte(`
format_version: "1.0"
entities: []
`)
	err := ValidateSchema(data)
	errutil.AssertErrorCode(t, err, "SCENARIO_INVALID")
}

func TestValidateSchema_WrongType(t *testing.T) {
	data := []byte(`
format_version: "1.0"
name: wrong types
entities: 5
`)
	err := ValidateSchema(data)
	errutil.AssertErrorCode(t, err, "SCENARIO_INVALID")
}

func TestValidateSchema_NotYAML(t *testing.T) {
	err := ValidateSchema([]byte("\t{not yaml"))
	errutil.AssertErrorCode(t, err, "SCENARIO_PARSE_FAILED")
}
