package rerank

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

// resultsSchemaJSON is the contract model output must satisfy after JSON
// extraction. Scores outside [0,1] are a schema violation, not a value to
// clamp.
const resultsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["candidateId", "score"],
    "properties": {
      "candidateId": {"type": "string", "minLength": 1},
      "score": {"type": "number", "minimum": 0, "maximum": 1},
      "reason": {"type": "string"}
    }
  }
}`

var resultsSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultsSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("rerank: compiling results schema: %v", err))
	}
	resultsSchema = schema
}

// parseResults turns raw model output into validated results. The strict
// pass expects a bare JSON array; the lenient pass strips Markdown fences
// and surrounding prose before extracting the first array. Both failing, or
// the schema or bijection check failing, classifies as a parse failure so
// the caller moves to the next provider.
func parseResults(provider, raw string, docs []models.RerankDoc) ([]models.RerankResult, error) {
	payload := strings.TrimSpace(raw)

	results, strictErr := decodeResults(payload)
	if strictErr != nil {
		lenient, ok := extractJSONArray(payload)
		if !ok {
			return nil, apperrors.NewProviderError(provider, apperrors.ProviderParseFailure,
				fmt.Errorf("no JSON array in model output: %w", strictErr))
		}
		var lenientErr error
		results, lenientErr = decodeResults(lenient)
		if lenientErr != nil {
			return nil, apperrors.NewProviderError(provider, apperrors.ProviderParseFailure, lenientErr)
		}
	}

	if err := validateBijection(results, docs); err != nil {
		return nil, apperrors.NewProviderError(provider, apperrors.ProviderParseFailure, err)
	}
	return results, nil
}

// decodeResults validates payload against the results schema and unmarshals
// it. Schema first: a typed Unmarshal would silently zero out-of-contract
// values that must instead fail the pass.
func decodeResults(payload string) ([]models.RerankResult, error) {
	validation, err := resultsSchema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !validation.Valid() {
		msgs := make([]string, 0, len(validation.Errors()))
		for _, verr := range validation.Errors() {
			msgs = append(msgs, verr.String())
		}
		return nil, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
	}

	var results []models.RerankResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// extractJSONArray applies the lenient rules shared by both providers:
// remove Markdown code fences, then take the first balanced bracket run.
// Bracket characters inside JSON strings are skipped.
func extractJSONArray(raw string) (string, bool) {
	raw = stripFences(raw)

	start := strings.IndexByte(raw, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes a Markdown code fence wrapper, with or without a
// language tag.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(raw[:nl])
		if first == "" || len(first) <= 8 && !strings.ContainsAny(first, "[{") {
			raw = raw[nl+1:]
		}
	}
	if end := strings.LastIndex(raw, "```"); end >= 0 {
		raw = raw[:end]
	}
	return strings.TrimSpace(raw)
}

// validateBijection enforces that results cover exactly the input docset:
// same length, every candidate id exactly once, nothing invented.
func validateBijection(results []models.RerankResult, docs []models.RerankDoc) error {
	if len(results) != len(docs) {
		return fmt.Errorf("result count %d does not match docset size %d", len(results), len(docs))
	}

	expected := make(map[string]bool, len(docs))
	for _, doc := range docs {
		expected[doc.CandidateID] = false
	}
	for _, result := range results {
		seen, ok := expected[result.CandidateID]
		if !ok {
			return fmt.Errorf("result references unknown candidate %q", result.CandidateID)
		}
		if seen {
			return fmt.Errorf("candidate %q appears more than once", result.CandidateID)
		}
		expected[result.CandidateID] = true
	}
	return nil
}
