// Package template resolves variable placeholders in node configuration against the
// trigger payload and the outputs of previously executed nodes.
//
// Supported references:
//
//	{{trigger.data.user.email}}   $trigger.data.user.email
//	{{node_1.output.items[0]}}    $node_1.output.items[0]
//	{{item.name}} {{index}}       (inside a loop body)
//
// References that cannot be resolved are left in place verbatim.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(
	`\{\{\s*([^{}]+?)\s*\}\}` +
		`|\$((?:trigger\.data|[A-Za-z0-9_\-]+\.output)(?:\.[A-Za-z0-9_\-]+|\[\d+\])*)`,
)

// Scope is the data a placeholder may reference.
type Scope struct {
	Trigger map[string]any
	Results map[string]any
	Item    any
	Index   int
	InLoop  bool
}

// Resolve returns a copy of value with every resolvable placeholder substituted. Maps and
// slices are walked recursively; other values are returned unchanged.
func Resolve(value any, scope Scope) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Resolve(item, scope)
		}

		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			out[key] = stringify(resolveString(item, scope))
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, scope)
		}

		return out
	default:
		return value
	}
}

// ResolveMap is Resolve for node configuration maps.
func ResolveMap(config map[string]any, scope Scope) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	resolved, _ := Resolve(config, scope).(map[string]any)

	return resolved
}

// Unresolved lists the placeholders still present in value, in encounter order.
func Unresolved(value any) []string {
	var found []string

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			found = append(found, placeholderRe.FindAllString(t, -1)...)
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		case map[string]string:
			for _, item := range t {
				walk(item)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}

	walk(value)

	return found
}

// IsPlaceholder reports whether s is exactly one placeholder, as left behind when a
// reference could not be resolved.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	loc := placeholderRe.FindStringIndex(s)

	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func resolveString(input string, scope Scope) any {
	if !strings.Contains(input, "{{") && !strings.Contains(input, "$") {
		return input
	}

	// A string that is exactly one placeholder keeps the referenced value's type.
	if IsPlaceholder(input) {
		if value, ok := scope.lookup(reference(strings.TrimSpace(input))); ok {
			return value
		}

		return input
	}

	return placeholderRe.ReplaceAllStringFunc(input, func(match string) string {
		value, ok := scope.lookup(reference(match))
		if !ok {
			return match
		}

		return stringify(value)
	})
}

func reference(match string) string {
	m := placeholderRe.FindStringSubmatch(match)
	if m == nil {
		return ""
	}

	if m[1] != "" {
		return strings.TrimPrefix(strings.TrimSpace(m[1]), "$")
	}

	return m[2]
}

func (s Scope) lookup(ref string) (any, bool) {
	path := splitPath(ref)
	if len(path) == 0 {
		return nil, false
	}

	switch path[0] {
	case "trigger":
		if len(path) < 2 || path[1] != "data" {
			return nil, false
		}

		return Lookup(s.Trigger, path[2:])
	case "item":
		if !s.InLoop {
			return nil, false
		}

		return Lookup(s.Item, path[1:])
	case "index":
		if !s.InLoop || len(path) != 1 {
			return nil, false
		}

		return s.Index, true
	default:
		output, ok := s.Results[path[0]]
		if !ok || len(path) < 2 || path[1] != "output" {
			return nil, false
		}

		return Lookup(output, path[2:])
	}
}

func splitPath(ref string) []string {
	ref = strings.NewReplacer("[", ".", "]", "").Replace(ref)

	parts := strings.Split(ref, ".")
	path := parts[:0]

	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			path = append(path, part)
		}
	}

	return path
}

// Lookup walks path through nested maps and slices.
func Lookup(value any, path []string) (any, bool) {
	current := value

	for _, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(raw)
	}
}
