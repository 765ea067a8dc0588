package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// CleanJSON strips markdown code fences the model sometimes wraps around its
// JSON payload and, failing that, extracts the outermost object literal.
func CleanJSON(content string) string {
	text := strings.TrimSpace(content)

	if strings.HasPrefix(text, "```") {
		if match := fencedBlock.FindStringSubmatch(text); len(match) == 2 {
			text = strings.TrimSpace(match[1])
		}
	}

	if json.Valid([]byte(text)) {
		return text
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}

	return text
}

// DecodeJSON cleans content and unmarshals it into out, classifying any
// parse failure as malformed model output.
func DecodeJSON(content string, out interface{}) error {
	cleaned := CleanJSON(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return Malformed(fmt.Errorf("decode model json: %w", err))
	}
	return nil
}
