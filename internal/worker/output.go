package worker

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"server/internal/domain"
)

// designOutputSchema is the shape every generation result must satisfy before
// a job may complete: a root object holding the element tree.
const designOutputSchema = `{
  "type": "object",
  "required": ["root"],
  "properties": {
    "root": {
      "type": "object",
      "required": ["elements"],
      "properties": {
        "elements": {"type": "array"}
      }
    }
  }
}`

var designOutputLoader = gojsonschema.NewStringLoader(designOutputSchema)

// OutputValidationError reports provider output that failed schema validation.
type OutputValidationError struct {
	Reasons []string
}

func (e *OutputValidationError) Error() string {
	return "output validation failed: " + strings.Join(e.Reasons, "; ")
}

// ValidateDesignOutput checks a generation result against the design-output
// schema. Mode is accepted for future mode-specific schemas; both current
// modes share one output shape.
func ValidateDesignOutput(_ domain.JobMode, output []byte) error {
	result, err := gojsonschema.Validate(designOutputLoader, gojsonschema.NewBytesLoader(output))
	if err != nil {
		return &OutputValidationError{Reasons: []string{fmt.Sprintf("not well-formed JSON: %v", err)}}
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return &OutputValidationError{Reasons: reasons}
}
