// Package resolver interpolates {{path.to.value}} template expressions
// against a run context. Paths are dot-separated identifiers and
// non-negative list indices; there are no functions, operators or filters.
// Unresolved paths are never errors: a full-token miss resolves to nil, a
// miss inside a larger string resolves to the empty string.
package resolver

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Interpolate recursively resolves expressions in a template value.
// Strings that consist of exactly one token are replaced by the resolved
// value with its native type preserved; tokens embedded in larger strings
// are substituted by their string form. Maps and slices are walked
// structurally; all other values pass through unchanged.
//
// The function is pure: neither template nor context is mutated.
func Interpolate(template interface{}, context map[string]interface{}) interface{} {
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		// A context that cannot be serialized resolves nothing.
		ctxJSON = []byte("{}")
	}
	return interpolateValue(template, ctxJSON)
}

// Resolve resolves a single dot-separated path against the context.
// Returns nil when any step of the path is absent.
func Resolve(path string, context map[string]interface{}) interface{} {
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		return nil
	}
	return resolvePath(path, ctxJSON)
}

func interpolateValue(template interface{}, ctxJSON []byte) interface{} {
	switch v := template.(type) {
	case string:
		return interpolateString(v, ctxJSON)
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for key, value := range v {
			resolved[key] = interpolateValue(value, ctxJSON)
		}
		return resolved
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, value := range v {
			resolved[i] = interpolateValue(value, ctxJSON)
		}
		return resolved
	default:
		return template
	}
}

func interpolateString(s string, ctxJSON []byte) interface{} {
	tokens := findTokens(s)
	if len(tokens) == 0 {
		return s
	}

	// A string that is exactly one token resolves to the value itself,
	// native type preserved.
	if len(tokens) == 1 && tokens[0].start == 0 && tokens[0].end == len(s) {
		return resolvePath(tokens[0].body, ctxJSON)
	}

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		b.WriteString(s[last:tok.start])
		b.WriteString(stringify(resolvePath(tok.body, ctxJSON)))
		last = tok.end
	}
	b.WriteString(s[last:])
	return b.String()
}

type token struct {
	start, end int // byte offsets of {{...}} in the source string
	body       string
}

// findTokens scans for non-nested {{...}} occurrences left to right
func findTokens(s string) []token {
	var tokens []token
	offset := 0
	for {
		open := strings.Index(s[offset:], "{{")
		if open < 0 {
			break
		}
		open += offset
		close := strings.Index(s[open+2:], "}}")
		if close < 0 {
			break
		}
		close += open + 2
		tokens = append(tokens, token{
			start: open,
			end:   close + 2,
			body:  s[open+2 : close],
		})
		offset = close + 2
	}
	return tokens
}

// resolvePath walks a dot-separated path through the context snapshot.
// Maps are looked up by key; lists are indexed by non-negative integers;
// anything else short-circuits to nil.
func resolvePath(path string, ctxJSON []byte) interface{} {
	segments := strings.Split(path, ".")
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil
		}
		escaped = append(escaped, escapeSegment(seg))
	}

	result := gjson.GetBytes(ctxJSON, strings.Join(escaped, "."))
	if !result.Exists() {
		return nil
	}
	return result.Value()
}

// escapeSegment neutralizes gjson path metacharacters so segments are
// always treated as literal keys or indices
func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '*', '?', '\\', '.', '#', '@', '|':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stringify renders a resolved value for in-string substitution.
// nil becomes the empty string; strings pass through; everything else is
// rendered as JSON.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
