// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"unicode"

	"go.yaml.in/yaml/v3"
)

// document is a decoded oracle reply: one JSON object plus the order in
// which its top-level keys appeared.
type document struct {
	fields map[string]any
	keys   []string
}

// StripFences removes a Markdown code fence around s, with or without a
// language tag. Text before the opening fence and after the closing fence
// is dropped. s is returned trimmed when it has no fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	body = strings.TrimLeftFunc(body, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '+'
	})
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// decode reads an oracle reply. The grammar, tried in order:
//
//  1. strict JSON of the reply, then of the fence-stripped reply;
//  2. strict JSON after repair: cut to the outermost {...} or [...] span,
//     drop trailing commas, and map None/True/False outside quoted strings
//     to JSON literals;
//  3. YAML flow syntax of the repaired text, which also accepts
//     single-quoted strings and unquoted keys.
//
// The value must then be an object, or an array of objects which is folded
// into one object. An array of section-shaped objects becomes {"sections": [...]}.
func decode(raw string) (document, error) {
	if v, err := decodeJSON(strings.TrimSpace(raw)); err == nil {
		return shape(v, raw)
	}

	text := StripFences(raw)
	if text == "" {
		return document{}, &ParseError{Raw: raw, Err: errors.New("empty response")}
	}

	v, jsonErr := decodeJSON(text)
	if jsonErr == nil {
		return shape(v, text)
	}

	repaired := repair(text)
	if v, err := decodeJSON(repaired); err == nil {
		return shape(v, repaired)
	}

	var y any
	if err := yaml.Unmarshal([]byte(repaired), &y); err == nil {
		switch y.(type) {
		case map[string]any, map[any]any, []any:
			return shape(normalizeYAML(y), repaired)
		}
	}
	return document{}, &ParseError{Raw: raw, Err: jsonErr}
}

// decodeJSON decodes exactly one JSON value from s.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// zoneKeys mark an object as a zone object rather than a section node.
var zoneKeys = []string{"title", "authors", "abstract", "keywords", "index_terms", "key_words", "sections", "references"}

func shape(v any, text string) (document, error) {
	switch t := v.(type) {
	case map[string]any:
		return document{fields: t, keys: orderedKeys(text)}, nil
	case []any:
		objs := make([]map[string]any, 0, len(t))
		for i, e := range t {
			switch x := e.(type) {
			case string:
				objs = append(objs, map[string]any{"sections": []any{x}})
			case map[string]any:
				if k, val, ok := typedField(x); ok {
					objs = append(objs, map[string]any{k: val})
				} else if hasZoneKey(x) {
					objs = append(objs, x)
				} else {
					objs = append(objs, map[string]any{"sections": []any{x}})
				}
			default:
				return document{}, schemaErrorf("top-level array element %d is %s, want object", i, typeName(e))
			}
		}
		return fold(objs, orderedKeys(text)), nil
	default:
		return document{}, schemaErrorf("top-level value is %s, want object", typeName(v))
	}
}

func hasZoneKey(m map[string]any) bool {
	for k := range m {
		if slices.Contains(zoneKeys, normKey(k)) {
			return true
		}
	}
	return false
}

// typedField reads a flat element such as {"type": "title", "content": "..."}
// whose type names a zone key rather than a section kind.
func typedField(m map[string]any) (string, any, bool) {
	tv, _, ok := lookup(m, []string{"type"})
	if !ok {
		return "", nil, false
	}
	typ, isStr := tv.(string)
	if !isStr {
		return "", nil, false
	}
	key := normKey(typ)
	if key == "sections" || !slices.Contains(zoneKeys, key) {
		return "", nil, false
	}
	val, _, _ := lookup(m, contentKeys)
	return key, listValue(key, val), true
}

// listValue wraps the value of a list-valued zone key so that repeated flat
// elements concatenate when folded. Author and keyword strings are split on
// their separators first.
func listValue(key string, val any) any {
	if _, isList := val.([]any); isList || val == nil {
		return val
	}
	switch key {
	case "references":
		return []any{val}
	case "authors", "keywords", "index_terms", "key_words":
		s, isStr := val.(string)
		if !isStr {
			return []any{val}
		}
		parts, _ := asList(s)
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, p)
		}
		return out
	default:
		return val
	}
}

// fold merges objects into one: lists concatenate and the first non-list
// value of a key wins. order is the source order of the keys.
func fold(objs []map[string]any, order []string) document {
	out := document{fields: map[string]any{}}
	for _, m := range objs {
		keys := slices.DeleteFunc(slices.Clone(order), func(k string) bool {
			_, ok := m[k]
			return !ok
		})
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
		for _, k := range keys {
			v := m[k]
			prev, seen := out.fields[k]
			if !seen {
				out.fields[k] = v
				out.keys = append(out.keys, k)
				continue
			}
			pl, okPrev := prev.([]any)
			vl, okNew := v.([]any)
			if okPrev && okNew {
				out.fields[k] = append(slices.Clone(pl), vl...)
			}
		}
	}
	return out
}

// orderedKeys returns the top-level keys of text in source order. Arrays of
// objects contribute each object's keys once, first occurrence first.
func orderedKeys(text string) []string {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(text), &n); err != nil || len(n.Content) == 0 {
		return nil
	}
	var keys []string
	seen := map[string]bool{}
	collect := func(m *yaml.Node) {
		for i := 0; i+1 < len(m.Content); i += 2 {
			k := m.Content[i].Value
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	root := n.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		collect(root)
	case yaml.SequenceNode:
		for _, c := range root.Content {
			if c.Kind == yaml.MappingNode {
				collect(c)
			}
		}
	}
	return keys
}

// repair applies the tolerated fixes for near-JSON. Text inside double- or
// single-quoted strings is copied unchanged.
func repair(s string) string {
	s = outerSpan(s)

	var b strings.Builder
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
			b.WriteByte(c)
		default:
			if lit, word, ok := pythonLiteral(s, i); ok {
				b.WriteString(lit)
				i += len(word) - 1
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// outerSpan cuts s to the span from the first opening brace or bracket to
// the last closing one.
func outerSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

var pythonLiterals = map[string]string{"None": "null", "True": "true", "False": "false"}

func pythonLiteral(s string, i int) (lit, word string, ok bool) {
	if i > 0 && isWordByte(s[i-1]) {
		return "", "", false
	}
	for w, l := range pythonLiterals {
		if strings.HasPrefix(s[i:], w) {
			end := i + len(w)
			if end < len(s) && isWordByte(s[end]) {
				continue
			}
			return l, w, true
		}
	}
	return "", "", false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// normalizeYAML converts yaml.v3 maps with non-string keys into
// map[string]any so the rest of the package sees JSON-shaped values.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	default:
		return v
	}
}

// rawJSON marshals v without HTML escaping.
func rawJSON(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any, map[any]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
