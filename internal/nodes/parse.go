// Package nodes implements the pipeline stages: fetch, summarize,
// identify abstractions, analyze relationships, order chapters, write
// chapters, combine tutorial. Each stage follows the three-phase contract
// of the flow engine.
package nodes

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var fencedBlockRes = []*regexp.Regexp{
	regexp.MustCompile("(?s)```yaml\\s*\\n(.*?)\\n```"),
	regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n```"),
}

// extractFencedBlock returns the content of the first markdown code
// fence, or the trimmed text when no fence is present.
func extractFencedBlock(text string) string {
	text = strings.TrimSpace(text)
	for _, re := range fencedBlockRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return text
}

// extractListBlock returns the first YAML list block in text, used as a
// fallback when the model wraps its list in prose.
func extractListBlock(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "- ") {
			start = i
			break
		}
	}
	if start < 0 {
		return text
	}
	var block []string
	inBlock := false
	for _, line := range lines[start:] {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "- "):
			inBlock = true
			block = append(block, line)
		case !inBlock:
		case strings.TrimSpace(line) == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			block = append(block, line)
		default:
			// A new top-level line ends the list.
			return strings.Join(block, "\n")
		}
	}
	if joined := strings.TrimSpace(strings.Join(block, "\n")); joined != "" {
		return joined
	}
	return text
}

// parseList parses text as a YAML or JSON list. A map with a plausible
// list under "abstractions", "items", or "list" is unwrapped.
func parseList(text string) ([]any, bool) {
	if text == "" {
		return nil, false
	}
	var data any
	if err := yaml.Unmarshal([]byte(text), &data); err != nil {
		data = nil
	}
	if list, ok := unwrapList(data); ok {
		return list, true
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}
	return unwrapList(data)
}

func unwrapList(data any) ([]any, bool) {
	if m, ok := data.(map[string]any); ok {
		for _, key := range []string{"abstractions", "items", "list"} {
			if v, ok := m[key]; ok {
				data = v
				break
			}
		}
	}
	list, ok := data.([]any)
	return list, ok
}

// parseDict parses text as a YAML or JSON mapping.
func parseDict(text string) (map[string]any, bool) {
	if text == "" {
		return nil, false
	}
	var data any
	if err := yaml.Unmarshal([]byte(text), &data); err == nil {
		if m, ok := data.(map[string]any); ok {
			return m, true
		}
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}
	m, ok := data.(map[string]any)
	return m, ok
}

// parseIndexRef converts "0 # path/or/name", "0", or an integer into an
// index.
func parseIndexRef(ref any) (int, bool) {
	switch v := ref.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	s := strings.TrimSpace(toString(ref))
	if s == "" {
		return 0, false
	}
	if i := strings.Index(s, "#"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		b, err := yaml.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}

// firstString returns the first non-empty string under any of the keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := strings.TrimSpace(toString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func dedupeKeepOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
