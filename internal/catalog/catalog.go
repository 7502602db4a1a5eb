// Package catalog holds the immutable tool catalog: every operation the
// server offers, with its argument schema, synonym table, and example
// invocations. The catalog is the single source of truth for all
// transports; clients discover it through the introspection tools.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownTool reports a catalog miss.
var ErrUnknownTool = errors.New("unknown tool")

// Example is one stored example invocation of a tool.
type Example struct {
	Description string         `json:"description"`
	Arguments   map[string]any `json:"arguments"`
}

// Entry describes one tool.
type Entry struct {
	Name        string
	Description string
	Category    string
	Schema      Schema

	// Aliases maps accepted synonym field names to canonical names,
	// consulted by the validation pipeline before type checking.
	Aliases map[string]string

	Examples []Example
}

// Catalog is the immutable tool set. Safe for concurrent use without
// synchronization.
type Catalog struct {
	entries []Entry
	byName  map[string]*Entry
}

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// New builds a catalog, checks every entry, renders each schema to JSON
// Schema and compiles it, and validates every stored example against
// its compiled schema. Any failure is a programmer error in the static
// catalog definition.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: entries,
		byName:  make(map[string]*Entry, len(entries)),
	}
	for i := range entries {
		e := &c.entries[i]
		if !nameRe.MatchString(e.Name) {
			return nil, fmt.Errorf("tool name %q is not canonical", e.Name)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", e.Name)
		}
		if e.Category == "" {
			return nil, fmt.Errorf("tool %q has no category", e.Name)
		}
		for alias, canonical := range e.Aliases {
			if _, ok := e.Schema.Field(canonical); !ok {
				return nil, fmt.Errorf("tool %q: alias %q targets unknown field %q", e.Name, alias, canonical)
			}
			if _, ok := e.Schema.Field(alias); ok {
				return nil, fmt.Errorf("tool %q: alias %q shadows a canonical field", e.Name, alias)
			}
		}
		if err := checkExamples(e); err != nil {
			return nil, err
		}
		c.byName[e.Name] = e
	}
	return c, nil
}

// MustNew is New for static catalogs; it panics on definition errors.
func MustNew(entries []Entry) *Catalog {
	c, err := New(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// checkExamples compiles the rendered JSON Schema and validates each
// stored example invocation against it.
func checkExamples(e *Entry) error {
	rendered, err := json.Marshal(JSONSchema(e.Schema))
	if err != nil {
		return fmt.Errorf("tool %q: render schema: %w", e.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "catalog:///" + e.Name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(rendered)); err != nil {
		return fmt.Errorf("tool %q: add schema: %w", e.Name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", e.Name, err)
	}
	for i, ex := range e.Examples {
		args := ex.Arguments
		if args == nil {
			args = map[string]any{}
		}
		// Examples may use declared aliases; rewrite before checking.
		doc := make(map[string]any, len(args))
		for k, v := range args {
			if canonical, ok := e.Aliases[k]; ok {
				k = canonical
			}
			doc[k] = v
		}
		if err := schema.Validate(toJSONValue(doc)); err != nil {
			return fmt.Errorf("tool %q: example %d invalid: %w", e.Name, i, err)
		}
	}
	return nil
}

// toJSONValue round-trips a value through encoding/json so the
// validator sees the types a decoded request would carry.
func toJSONValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Get returns the entry for name, or ErrUnknownTool.
func (c *Catalog) Get(name string) (*Entry, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownTool)
	}
	return e, nil
}

// Entries returns all entries in declaration order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Names returns all tool names sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the tool count.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Categories returns category names in first-appearance order.
func (c *Catalog) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range c.entries {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	return out
}

// ByCategory returns the entries in one category, declaration order.
func (c *Catalog) ByCategory(category string) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}
