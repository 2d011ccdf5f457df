package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://evolve.schemas.local/ledger.schema.json"

const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["cursor_commit_id", "current_description", "level", "total_commits", "history"],
  "properties": {
    "cursor_commit_id": {"type": "string"},
    "cursor_timestamp": {"type": ["string", "null"]},
    "current_description": {"type": "string", "minLength": 1},
    "level": {"type": "integer", "minimum": 0},
    "total_commits": {"type": "integer", "minimum": 0},
    "history": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["level", "commit_id", "commit_date", "previous_description", "new_description", "prompt"],
        "properties": {
          "level": {"type": "integer", "minimum": 1},
          "commit_id": {"type": "string", "minLength": 1},
          "commit_message": {"type": "string"},
          "commit_date": {"type": "string"},
          "previous_description": {"type": "string"},
          "new_description": {"type": "string", "minLength": 1},
          "prompt": {"type": "string"},
          "source": {"enum": ["generated", "fallback", ""]}
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("ledger schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
})

func validateSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
