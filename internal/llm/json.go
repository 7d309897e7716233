package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// ExtractJSON returns the JSON document inside a model answer. Fenced code blocks
// (untagged or tagged json) are preferred over the first balanced object in the raw text.
func ExtractJSON(answer string) (string, error) {
	for _, m := range codeBlockRe.FindAllStringSubmatch(answer, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(m[2])
		if json.Valid([]byte(content)) {
			return content, nil
		}
	}

	if raw, ok := firstObject(answer); ok {
		return raw, nil
	}

	return "", fmt.Errorf("no JSON object found in model answer")
}

// firstObject scans for the first balanced {...} span that is valid JSON.
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := closingBrace(s, start); end > 0 {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}

		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return "", false
}

// closingBrace returns the index of the brace closing the one at start, -1 if unbalanced.
func closingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == '{' && !inString:
			depth++
		case c == '}' && !inString:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
