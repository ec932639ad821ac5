package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// requiredFields must be non-empty strings after merge.
var requiredFields = []string{"business.name", "assistant.name"}

var documentSchema = map[string]any{
	"type":     "object",
	"required": []any{"business", "assistant"},
	"properties": map[string]any{
		"business": map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name":     map[string]any{"type": "string"},
				"timezone": map[string]any{"type": "string"},
			},
		},
		"assistant": map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
		},
		"hours": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"services": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
			},
		},
		"serviceArea": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"rules": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"greetings": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"variations": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
		},
		"calendar": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{"type": "string"},
			},
		},
	},
}

// validateDocument checks a merged document and returns the missing
// required fields and any other schema violations.
func validateDocument(doc map[string]any) (missing, problems []string, err error) {
	for _, path := range requiredFields {
		s, _ := lookup(doc, path).(string)
		if strings.TrimSpace(s) == "" {
			missing = append(missing, path)
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(documentSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("schema validation: %w", err)
	}
	for _, desc := range result.Errors() {
		// Missing required keys are already reported by path above.
		if desc.Type() == "required" {
			continue
		}
		problems = append(problems, desc.String())
	}
	sort.Strings(problems)
	return missing, problems, nil
}

func lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
