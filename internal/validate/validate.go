// Package validate implements the schema-driven argument pipeline that
// runs in front of every tool handler: synonym normalization, shape
// check, required fields, types, bounds, then defaults. The pipeline is
// pure; it never touches the database.
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aidis-io/aidis/internal/catalog"
)

// Error is a structured validation failure. Reason is one of
// "missing", "type_mismatch", or "out_of_bounds".
type Error struct {
	Field    string `json:"field"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`
	Value    any    `json:"value,omitempty"`
	Bound    string `json:"bound,omitempty"`
}

func (e *Error) Error() string {
	switch e.Reason {
	case "missing":
		return fmt.Sprintf("field %q is required", e.Field)
	case "type_mismatch":
		return fmt.Sprintf("field %q must be %s, got %s", e.Field, e.Expected, e.Got)
	case "out_of_bounds":
		return fmt.Sprintf("field %q violates %s (got %v)", e.Field, e.Bound, e.Value)
	default:
		return fmt.Sprintf("field %q is invalid", e.Field)
	}
}

// Apply runs the pipeline for one tool entry over raw arguments as
// decoded from JSON. On success it returns a new argument map with
// aliases rewritten, unknown fields preserved, and defaults applied.
// Given the same inputs it always produces the same outcome.
func Apply(entry *catalog.Entry, raw any) (map[string]any, error) {
	// Phase 2 first in code: nil means "no arguments", anything else
	// must be an object before field-level phases can run.
	var in map[string]any
	switch v := raw.(type) {
	case nil:
		in = map[string]any{}
	case map[string]any:
		in = v
	default:
		return nil, &Error{Reason: "type_mismatch", Expected: "object", Got: typeName(raw)}
	}

	// Phase 1: synonym normalization, shallow, canonical wins. Aliases
	// are applied in sorted order so the outcome never depends on map
	// iteration when several synonyms of one field are present.
	args := make(map[string]any, len(in))
	for k, v := range in {
		args[k] = v
	}
	aliases := make([]string, 0, len(entry.Aliases))
	for alias := range entry.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		v, ok := args[alias]
		if !ok {
			continue
		}
		delete(args, alias)
		canonical := entry.Aliases[alias]
		if _, exists := args[canonical]; !exists {
			args[canonical] = v
		}
	}

	// Phase 3: required fields.
	for _, f := range entry.Schema.Fields {
		if !f.Required {
			continue
		}
		if _, ok := args[f.Name]; !ok {
			return nil, &Error{Field: f.Name, Reason: "missing"}
		}
	}

	// Phases 4 and 5: per-field type and bounds checks. Unknown fields
	// pass through untouched.
	for _, f := range entry.Schema.Fields {
		v, ok := args[f.Name]
		if !ok {
			continue
		}
		checked, err := checkField(f.Name, f, v)
		if err != nil {
			return nil, err
		}
		args[f.Name] = checked
	}

	// Phase 6: defaults, applied after all checks.
	for _, f := range entry.Schema.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := args[f.Name]; !ok {
			args[f.Name] = f.Default
		}
	}

	return args, nil
}

// checkField verifies one value against its declared field, returning
// the value in its canonical Go shape (integers as int64).
func checkField(path string, f catalog.Field, v any) (any, error) {
	switch f.Type {
	case catalog.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "string", Got: typeName(v)}
		}
		if f.MinLen != nil && len(s) < *f.MinLen {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: s, Bound: fmt.Sprintf("minLength=%d", *f.MinLen)}
		}
		if f.MaxLen != nil && len(s) > *f.MaxLen {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: truncate(s), Bound: fmt.Sprintf("maxLength=%d", *f.MaxLen)}
		}
		return s, nil

	case catalog.TypeInteger:
		n, ok := asNumber(v)
		if !ok || n != math.Trunc(n) {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "integer", Got: typeName(v)}
		}
		if f.Min != nil && n < *f.Min {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: n, Bound: fmt.Sprintf("minimum=%g", *f.Min)}
		}
		if f.Max != nil && n > *f.Max {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: n, Bound: fmt.Sprintf("maximum=%g", *f.Max)}
		}
		return int64(n), nil

	case catalog.TypeNumber:
		n, ok := asNumber(v)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "number", Got: typeName(v)}
		}
		if f.Min != nil && n < *f.Min {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: n, Bound: fmt.Sprintf("minimum=%g", *f.Min)}
		}
		if f.Max != nil && n > *f.Max {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: n, Bound: fmt.Sprintf("maximum=%g", *f.Max)}
		}
		return n, nil

	case catalog.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "boolean", Got: typeName(v)}
		}
		return b, nil

	case catalog.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "string", Got: typeName(v)}
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, &Error{
			Field:    path,
			Reason:   "type_mismatch",
			Expected: "one of " + strings.Join(f.Enum, "|"),
			Got:      fmt.Sprintf("%q", s),
		}

	case catalog.TypeArray:
		items, ok := asSlice(v)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "array", Got: typeName(v)}
		}
		if f.MinItems != nil && len(items) < *f.MinItems {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: len(items), Bound: fmt.Sprintf("minItems=%d", *f.MinItems)}
		}
		if f.MaxItems != nil && len(items) > *f.MaxItems {
			return nil, &Error{Field: path, Reason: "out_of_bounds", Value: len(items), Bound: fmt.Sprintf("maxItems=%d", *f.MaxItems)}
		}
		if f.Elem != nil {
			out := make([]any, len(items))
			for i, item := range items {
				checked, err := checkField(fmt.Sprintf("%s[%d]", path, i), *f.Elem, item)
				if err != nil {
					return nil, err
				}
				out[i] = checked
			}
			return out, nil
		}
		return items, nil

	case catalog.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, &Error{Field: path, Reason: "type_mismatch", Expected: "object", Got: typeName(v)}
		}
		for _, nf := range f.Fields {
			nested, present := obj[nf.Name]
			nestedPath := path + "." + nf.Name
			if !present {
				if nf.Required {
					return nil, &Error{Field: nestedPath, Reason: "missing"}
				}
				continue
			}
			checked, err := checkField(nestedPath, nf, nested)
			if err != nil {
				return nil, err
			}
			obj[nf.Name] = checked
		}
		return obj, nil
	}
	return v, nil
}

// asNumber accepts the numeric shapes a decoded or programmatic call
// may carry.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asSlice accepts decoded JSON arrays and programmatic string slices.
func asSlice(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truncate(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "…"
}

// Helpers for handlers reading validated argument maps. Values arrive
// in the canonical shapes produced by Apply.

// Str returns the string at key, or "" when absent.
func Str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Int returns the integer at key, or 0 when absent.
func Int(args map[string]any, key string) int64 {
	switch n := args[key].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// StrSlice returns the string slice at key, skipping non-strings.
func StrSlice(args map[string]any, key string) []string {
	switch items := args[key].(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Has reports whether key is present.
func Has(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}
