package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// INTENT VALIDATION — JSON Schema checks at the boundary
// ============================================================================
// Intent documents arriving as text are checked against a JSON Schema before
// they are decoded into engine Values. The engine repeats the structural
// checks it needs; the schema gives callers every problem at once instead of
// the first one.
// ============================================================================

const intentSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "name": {"type": "string", "minLength": 1},
    "expression": {
      "type": "object",
      "required": ["operator"],
      "properties": {
        "field": {"$ref": "#/definitions/name"},
        "operator": {"$ref": "#/definitions/name"},
        "expressions": {"type": "array", "items": {"$ref": "#/definitions/expression"}}
      },
      "anyOf": [{"required": ["field"]}, {"required": ["expressions"]}]
    },
    "filter": {
      "anyOf": [
        {"type": "null"},
        {"type": "array", "items": {"$ref": "#/definitions/expression"}},
        {"$ref": "#/definitions/expression"}
      ]
    },
    "sortKey": {
      "anyOf": [
        {"$ref": "#/definitions/name"},
        {
          "type": "object",
          "properties": {
            "name": {"$ref": "#/definitions/name"},
            "field": {"$ref": "#/definitions/name"},
            "direction": {"type": "string"},
            "type": {"type": "string"}
          },
          "anyOf": [{"required": ["name"]}, {"required": ["field"]}]
        }
      ]
    },
    "aggregates": {
      "anyOf": [
        {"type": "null"},
        {"type": "object", "additionalProperties": {"$ref": "#/definitions/name"}},
        {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["agg", "field"],
            "properties": {
              "agg": {"$ref": "#/definitions/name"},
              "field": {"$ref": "#/definitions/name"}
            }
          }
        }
      ]
    }
  },
  "type": "object",
  "properties": {
    "filter": {"$ref": "#/definitions/filter"},
    "fuzzy_filter": {
      "anyOf": [
        {"type": "null"},
        {
          "type": "object",
          "required": ["value"],
          "properties": {
            "fields": {"type": "array", "items": {"type": "string"}},
            "include": {"type": "array", "items": {"type": "string"}},
            "exclude": {"type": "array", "items": {"type": "string"}},
            "value": {"type": ["string", "number", "boolean"]}
          }
        }
      ]
    },
    "case_sensitive": {"type": ["boolean", "null"]},
    "sort": {"anyOf": [{"type": "null"}, {"type": "array", "items": {"$ref": "#/definitions/sortKey"}}]},
    "group": {"anyOf": [{"type": "null"}, {"type": "array", "items": {"$ref": "#/definitions/name"}}]},
    "aggregates": {"$ref": "#/definitions/aggregates"},
    "aggregate": {"$ref": "#/definitions/aggregates"}
  }
}`

const uniqueSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "name": {"type": "string", "minLength": 1}
  },
  "type": "array",
  "items": {
    "anyOf": [
      {"$ref": "#/definitions/name"},
      {
        "type": "object",
        "properties": {
          "name": {"$ref": "#/definitions/name"},
          "field": {"$ref": "#/definitions/name"},
          "type": {"enum": ["", "string", "long", "number", "boolean", "duration", "date"]}
        },
        "anyOf": [{"required": ["name"]}, {"required": ["field"]}]
      }
    ]
  }
}`

var (
	intentSchema = mustSchema(intentSchemaJSON)
	uniqueSchema = mustSchema(uniqueSchemaJSON)
)

func mustSchema(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(errors.Wrap(err, "compiling schema"))
	}
	return s
}

// ValidateIntentJSON checks raw JSON intent text.
func ValidateIntentJSON(doc []byte) error {
	return validate(intentSchema, "perspective", gojsonschema.NewBytesLoader(doc))
}

// ValidateIntent checks an already-decoded intent document (maps, slices
// and scalars as produced by a JSON or YAML decoder).
func ValidateIntent(doc any) error {
	return validate(intentSchema, "perspective", gojsonschema.NewGoLoader(doc))
}

// ValidateUniqueFields checks an already-decoded unique-values field list.
func ValidateUniqueFields(doc any) error {
	return validate(uniqueSchema, "unique", gojsonschema.NewGoLoader(doc))
}

func validate(schema *gojsonschema.Schema, stage string, loader gojsonschema.JSONLoader) error {
	result, err := schema.Validate(loader)
	if err != nil {
		return &engine.IntentError{Stage: stage, Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	key := ""
	for _, re := range result.Errors() {
		if key == "" {
			key = re.Field()
		}
		problems = append(problems, re.String())
	}
	return &engine.IntentError{Stage: stage, Key: key, Reason: strings.Join(problems, "; ")}
}
