package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TitleListSchema defines the JSON schema for the oracle's fallback title
// suggestions: a bare array of {title, year} objects. The model often volunteers
// extra keys and sometimes an empty list; both are acceptable answers, so the
// schema only rejects wrong shapes and wrong types.
var TitleListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"year": {"type": "integer", "minimum": 1870, "maximum": 2100}
		},
		"required": ["title", "year"]
	}
}`

// ValidateTitleList validates a JSON response against the title list schema.
func ValidateTitleList(jsonData []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(TitleListSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("JSON validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
