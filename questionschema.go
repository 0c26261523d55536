package quizbank

import (
	"encoding/json"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// questionItemSchema is the JSON Schema every generated item must satisfy.
// Array-valued "question" fields are joined before this check runs.
const questionItemSchema = `{
  "type": "object",
  "properties": {
    "passage": {"type": ["string", "null"]},
    "question": {"type": "string", "minLength": 1},
    "options": {
      "type": "array",
      "minItems": 4,
      "maxItems": 4,
      "items": {"type": "string", "minLength": 1}
    },
    "correctIndex": {"type": "integer", "minimum": 0, "maximum": 3},
    "explanation": {"type": "string"},
    "clue": {"type": "string"}
  },
  "required": ["question", "options", "correctIndex", "explanation", "clue"]
}`

var (
	itemSchemaOnce sync.Once
	itemSchema     *gojsonschema.Schema
	itemSchemaErr  error
)

func compiledItemSchema() (*gojsonschema.Schema, error) {
	itemSchemaOnce.Do(func() {
		itemSchema, itemSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(questionItemSchema))
	})
	return itemSchema, itemSchemaErr
}

// QuestionItemSchema returns the item schema as a generic map, for providers
// that accept a response schema.
func QuestionItemSchema() map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(questionItemSchema), &out); err != nil {
		panic(err)
	}
	return out
}

// QuestionListSchema wraps the item schema in the {"questions": [...]} object
// shape, which is what object-rooted structured output modes return.
func QuestionListSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"questions": map[string]interface{}{
				"type":  "array",
				"items": QuestionItemSchema(),
			},
		},
		"required": []string{"questions"},
	}
}
