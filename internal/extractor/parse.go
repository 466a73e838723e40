package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultConfidence is used when the model reports a bare string value.
const DefaultConfidence = 0.85

const responseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {
      "oneOf": [
        {"type": "string"},
        {
          "type": "object",
          "required": ["value"],
          "properties": {
            "value": {"type": "string"},
            "confidence": {"type": "number", "minimum": 0, "maximum": 1}
          }
        }
      ]
    }
  }
}`

var responseSchema = mustCompileSchema(responseSchemaJSON)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compiling extractor response schema: %v", err))
	}
	return schema
}

var errMalformedResponse = errors.New("malformed model response")

type rawItem struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// ParseResponse cleans a raw model reply, validates it against the response
// schema and maps known categories to items. Empty and duplicate values are
// dropped; the first confidence reported for a value wins.
func ParseResponse(raw string) ([]Item, error) {
	body := extractJSONObject(stripCodeFence(stripThinkBlock(raw)))
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object", errMalformedResponse)
	}

	result, err := responseSchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", errMalformedResponse, strings.Join(msgs, "; "))
	}

	var doc map[string][]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	type key struct{ cat, value string }
	seen := make(map[key]bool)
	var items []Item
	for _, cat := range sortedKeys(doc) {
		typ, known := categoryTypes[cat]
		if !known {
			continue
		}
		for _, rawEl := range doc[cat] {
			it := rawItem{}
			var s string
			if err := json.Unmarshal(rawEl, &s); err == nil {
				it.Value = s
			} else if err := json.Unmarshal(rawEl, &it); err != nil {
				continue
			}
			value := strings.TrimSpace(it.Value)
			if value == "" || seen[key{cat, value}] {
				continue
			}
			seen[key{cat, value}] = true
			conf := DefaultConfidence
			if it.Confidence != nil {
				conf = *it.Confidence
			}
			items = append(items, Item{Type: typ, Value: value, Confidence: conf, Category: cat})
		}
	}
	return items, nil
}

func sortedKeys(m map[string][]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripThinkBlock removes a <think>...</think> preamble emitted by reasoning models.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// extractJSONObject returns the outermost {...} substring of s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
