package web

import (
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/xeipuuv/gojsonschema"
)

// validateBody checks a webhook payload against the trigger's JSON schema. It returns the
// violations, or an error when the schema itself is unusable.
func validateBody(schema map[string]any, data map[string]any) ([]string, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, failures.Newf(failures.KindConfiguration, "webhook_schema", "invalid webhook schema: %v", err)
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return problems, nil
}
