package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// 中文说明：
// 模型输出不是纯 JSON：前后可能夹叙述文字、围栏代码块，字符串值里还可能出现
// 大括号。这里按可靠度从高到低依次尝试三种提取策略。

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json|JSON)\\s*(.*?)```")

// ErrNoJSON 表示所有提取策略均失败。
type ErrNoJSON struct {
	InputLen int
	Preview  string
}

func (e *ErrNoJSON) Error() string {
	return fmt.Sprintf("no JSON object found in model output (len=%d, preview=%q)", e.InputLen, e.Preview)
}

// Extract recovers a single JSON object from an arbitrary text blob.
// Strategy order:
//  1. marker-anchored balanced-brace scan — the only strategy that survives
//     nested objects and example snippets elsewhere in the text;
//  2. fenced ```json block;
//  3. substring between first '{' and last '}'.
//
// The input is never rewritten before parsing: stripping "comment-looking"
// substrings corrupts legitimate content such as https:// URLs.
func Extract(text string, markers ...string) (json.RawMessage, error) {
	for _, marker := range markers {
		if raw, ok := extractByMarker(text, marker); ok {
			return raw, nil
		}
	}
	if m := fencedJSONPattern.FindStringSubmatch(text); len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	if raw, ok := extractFirstLast(text); ok {
		return raw, nil
	}
	return nil, &ErrNoJSON{InputLen: len(text), Preview: Preview(text, 160)}
}

func extractByMarker(text, marker string) (json.RawMessage, bool) {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return nil, false
	}
	at := strings.Index(text, marker)
	if at < 0 {
		return nil, false
	}
	start := strings.LastIndexByte(text[:at], '{')
	if start < 0 {
		return nil, false
	}
	end, ok := scanBalanced(text, start)
	if !ok {
		return nil, false
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

// scanBalanced walks forward from the opening brace at start, tracking string
// and escape state so braces inside string values do not skew the balance.
func scanBalanced(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func extractFirstLast(text string) (json.RawMessage, bool) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return nil, false
	}
	candidate := strings.TrimSpace(text[first : last+1])
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

// Preview 截断字符串用于诊断输出；按字节截断，不因非法 UTF-8 报错。
func Preview(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
