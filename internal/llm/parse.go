package llm

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNoMatch is returned when model output holds no parsable structure.
var ErrNoMatch = errors.New("no parsable structure in model output")

// ExtractDict returns the first object found in text. JSON and Python
// literal syntax are both accepted. "True" and "False" string values are
// turned into booleans.
func ExtractDict(text string) (map[string]any, error) {
	text = stripFences(text)
	if v, err := parseLiteral(text); err == nil {
		if m, ok := v.(map[string]any); ok {
			return coerceBools(m), nil
		}
	}
	for _, c := range balanced(text, '{', '}', false) {
		v, err := parseLiteral(c)
		if err != nil {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return coerceBools(m), nil
		}
	}
	return nil, ErrNoMatch
}

// ExtractList returns the first list found in text, or an empty list.
func ExtractList(text string) []any {
	text = stripFences(text)
	if v, err := parseLiteral(text); err == nil {
		if l, ok := v.([]any); ok {
			return l
		}
	}
	for _, c := range balanced(text, '[', ']', false) {
		v, err := parseLiteral(c)
		if err != nil {
			continue
		}
		if l, ok := v.([]any); ok {
			return l
		}
	}
	return []any{}
}

// ExtractListOfDicts accepts a list of objects, a single object, or objects
// scattered through prose. Items that are not objects are dropped.
func ExtractListOfDicts(text string) ([]map[string]any, error) {
	text = stripFences(text)
	if v, err := parseLiteral(text); err == nil {
		switch t := v.(type) {
		case []any:
			out := make([]map[string]any, 0, len(t))
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					out = append(out, coerceBools(m))
				}
			}
			return out, nil
		case map[string]any:
			return []map[string]any{coerceBools(t)}, nil
		}
	}

	var out []map[string]any
	for _, c := range balanced(text, '{', '}', true) {
		v, err := parseLiteral(c)
		if err != nil {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			out = append(out, coerceBools(m))
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// StringField returns m[key] when it is a string.
func StringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// IntField accepts JSON numbers with no fractional part and numeric strings.
func IntField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func coerceBools(m map[string]any) map[string]any {
	for k, v := range m {
		switch v {
		case "True":
			m[k] = true
		case "False":
			m[k] = false
		}
	}
	return m
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func parseLiteral(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoMatch
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	norm, err := normalizePython(text)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(norm), &v); err != nil {
		return nil, ErrNoMatch
	}
	return v, nil
}

// normalizePython rewrites Python literal syntax as JSON: single-quoted
// strings, True/False/None and trailing commas.
func normalizePython(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			body, end, err := readString(s, i)
			if err != nil {
				return "", err
			}
			quoted, _ := json.Marshal(body)
			b.Write(quoted)
			i = end
		case isIdentByte(c) && (c < '0' || c > '9'):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				i++
				continue
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// readString decodes the quoted string starting at s[start] and returns it
// with the index just past the closing quote.
func readString(s string, start int) (string, int, error) {
	q := s[start]
	var out []byte
	for j := start + 1; j < len(s); j++ {
		c := s[j]
		if c == '\\' && j+1 < len(s) {
			j++
			switch e := s[j]; e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\', '\'', '"', '/':
				out = append(out, e)
			default:
				out = append(out, '\\', e)
			}
			continue
		}
		if c == q {
			return string(out), j + 1, nil
		}
		out = append(out, c)
	}
	return "", 0, ErrNoMatch
}

// balanced returns the substrings of text that open with open and end at the
// matching close, ignoring brackets inside quoted strings. With topLevel set,
// candidates nested inside an earlier match are skipped.
func balanced(text string, open, close byte, topLevel bool) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		end := matchClose(text, i, open, close)
		if end < 0 {
			continue
		}
		out = append(out, text[i:end+1])
		if topLevel {
			i = end
		}
	}
	return out
}

func matchClose(text string, start int, open, close byte) int {
	depth := 0
	var quote byte
	for j := start; j < len(text); j++ {
		c := text[j]
		if quote != 0 {
			if c == '\\' {
				j++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
