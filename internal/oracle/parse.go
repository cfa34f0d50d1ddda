package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// fencedJSON matches a JSON object or array wrapped in a markdown code fence.
var fencedJSON = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*([{\\[].*[}\\]])\\s*\x60\x60\x60")

// parseJSON decodes a model's free-text answer into T. Models often wrap the
// payload in a code fence or in a sentence; both are tolerated.
func parseJSON[T any](response string) (*T, error) {
	raw := extractJSON(response)
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode model json: %w (payload: %s)", err, Truncate(raw, 300, "..."))
	}
	return &out, nil
}

func extractJSON(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		if m := fencedJSON.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
		return response
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		first := strings.Index(response, pair[0])
		last := strings.LastIndex(response, pair[1])
		if first != -1 && last > first {
			return response[first : last+1]
		}
	}
	return response
}

// Truncate cuts s to at most n bytes without splitting a rune and appends
// suffix when anything was cut.
func Truncate(s string, n int, suffix string) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + suffix
}
