package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaValidation is returned when a process model document does not match the document schema.
var ErrSchemaValidation = errors.New("process model document schema validation failed")

// processModelDocumentSchema describes the JSON document accepted by the model importer.
const processModelDocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "description", "state", "starter_subject_model_id", "subject_models"],
  "properties": {
    "id": {"type": "integer", "minimum": 0},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string", "minLength": 1},
    "version": {"type": "number", "minimum": 0},
    "state": {"type": "string", "enum": ["DRAFT", "RELEASED"]},
    "starter_subject_model_id": {"type": "integer", "minimum": 1},
    "subject_models": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "type", "states"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["INTERNAL", "EXTERNAL"]},
          "states": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["id", "name", "function_type"],
              "properties": {
                "id": {"type": "integer", "minimum": 1},
                "name": {"type": "string", "minLength": 1},
                "function_type": {"type": "string", "enum": ["SEND", "RECEIVE", "FUNCTION", "END"]},
                "start": {"type": "boolean"},
                "transitions": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["to_state_id"],
                    "properties": {"to_state_id": {"type": "integer", "minimum": 1}}
                  }
                }
              }
            }
          }
        }
      }
    },
    "message_flows": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "sender_state_id", "receiver_state_id", "business_object_models"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "sender_state_id": {"type": "integer", "minimum": 1},
          "receiver_state_id": {"type": "integer", "minimum": 1},
          "business_object_models": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["id", "name"],
              "properties": {
                "id": {"type": "integer", "minimum": 1},
                "name": {"type": "string", "minLength": 1}
              }
            }
          }
        }
      }
    }
  }
}`

// ParseProcessModelDocument validates a JSON document against the document
// schema and the structural rules, and decodes it.
func ParseProcessModelDocument(data []byte) (*ProcessModel, error) {
	schemaLoader := gojsonschema.NewStringLoader(processModelDocumentSchema)
	dataLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to read process model document: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(messages, "; "))
	}

	var pm ProcessModel

	err = json.Unmarshal(data, &pm)
	if err != nil {
		return nil, fmt.Errorf("failed to decode process model document: %w", err)
	}

	err = ValidateProcessModel(&pm)
	if err != nil {
		return nil, err
	}

	return &pm, nil
}
