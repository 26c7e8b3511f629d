package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// topicSchema validates topic documents at the load boundary so the
// scheduling code never has to re-check shapes.
const topicSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "difficulty", "estimated_minutes"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "category": {"type": "string"},
    "difficulty": {"enum": ["EASY", "MEDIUM", "HARD"]},
    "importance": {"type": "integer", "minimum": 1, "maximum": 10},
    "estimated_minutes": {"type": "integer", "minimum": 1},
    "prerequisites": {"type": "array", "items": {"type": "string"}}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(topicSchema)

// validateTopicDoc checks a decoded topic document against the schema.
func validateTopicDoc(doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding topic for validation: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validating topic: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid topic document: %s", strings.Join(msgs, "; "))
}
