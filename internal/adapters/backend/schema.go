package backend

import (
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// catalogSchema describes GET /activities: a map of activity name to details.
const catalogSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["max_participants", "participants"],
    "properties": {
      "description": {"type": "string"},
      "schedule": {"type": "string"},
      "max_participants": {"type": "integer", "minimum": 0},
      "participants": {"type": "array", "items": {"type": "string"}}
    }
  }
}`

var compiledCatalogSchema = mustCompile(catalogSchema)

func mustCompile(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("backend: invalid catalog schema: " + err.Error())
	}
	return schema
}

// validateCatalog checks a raw catalog payload against catalogSchema.
func validateCatalog(body []byte) error {
	result, err := compiledCatalogSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New("catalog schema: " + strings.Join(msgs, "; "))
}
