package ai

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ErrNoText indicates that no extractor could find text in a provider response.
var ErrNoText = errors.New("no text found in provider response")

// Extractor pulls text out of one response shape. It reports false when the shape is absent
// or empty.
type Extractor func(resp Response) (string, bool)

// jsonTextFields lists the keys inspected when scanning a raw JSON payload for text.
var jsonTextFields = []string{"text", "content", "message", "output", "result", "response"}

// GenerationChain is the accessor order used for email generation.
func GenerationChain() []Extractor {
	return []Extractor{TextField, FirstPart, FirstCandidate, RawString}
}

// EvaluationChain is the accessor order used for grading, with the extra JSON and verbatim
// fallbacks.
func EvaluationChain() []Extractor {
	return []Extractor{TextField, FirstPart, FirstCandidate, ContentField, JSONField, Verbatim(30)}
}

// Extract runs the chain in order and returns the first non-empty text.
func Extract(resp Response, chain []Extractor) (string, error) {
	for _, extractor := range chain {
		if extractor == nil {
			continue
		}
		if text, ok := extractor(resp); ok {
			return text, nil
		}
	}
	return "", ErrNoText
}

// TextField reads the top-level text accessor.
func TextField(resp Response) (string, bool) {
	return nonEmpty(resp.Text)
}

// FirstPart reads the first part of a parts list.
func FirstPart(resp Response) (string, bool) {
	if len(resp.Parts) == 0 {
		return "", false
	}
	return nonEmpty(resp.Parts[0].Text)
}

// FirstCandidate reads candidates[0].content.parts[0].text.
func FirstCandidate(resp Response) (string, bool) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return nonEmpty(resp.Candidates[0].Content.Parts[0].Text)
}

// ContentField reads a chat-style message content.
func ContentField(resp Response) (string, bool) {
	return nonEmpty(resp.Content)
}

// RawString uses the raw payload when it is plain text rather than a JSON document.
func RawString(resp Response) (string, bool) {
	raw := strings.TrimSpace(resp.Raw)
	if raw == "" || strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return "", false
	}
	return raw, true
}

// JSONField scans the raw payload for a JSON object and returns the first text-like field,
// searching nested objects and arrays depth first.
func JSONField(resp Response) (string, bool) {
	raw := resp.Raw
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
		return "", false
	}
	return findTextField(doc)
}

// Verbatim uses the whole raw payload when it is longer than minLen characters.
func Verbatim(minLen int) Extractor {
	return func(resp Response) (string, bool) {
		raw := strings.TrimSpace(resp.Raw)
		if len(raw) <= minLen {
			return "", false
		}
		return raw, true
	}
}

func findTextField(node interface{}) (string, bool) {
	switch value := node.(type) {
	case map[string]interface{}:
		for _, key := range jsonTextFields {
			if str, ok := value[key].(string); ok {
				if text, ok := nonEmpty(str); ok {
					return text, true
				}
			}
		}
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if text, ok := findTextField(value[key]); ok {
				return text, true
			}
		}
	case []interface{}:
		for _, child := range value {
			if text, ok := findTextField(child); ok {
				return text, true
			}
		}
	}
	return "", false
}

func nonEmpty(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
