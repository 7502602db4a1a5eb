package catalog

// JSONSchema renders a tool schema as a JSON Schema object (draft
// 2020-12). The rendering is used by tools/list, /mcp/tools/schemas,
// and the startup example self-check. Unknown fields are allowed to
// pass through, mirroring the validation pipeline.
func JSONSchema(s Schema) map[string]any {
	properties := map[string]any{}
	var required []string
	for _, f := range s.Fields {
		properties[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f Field) map[string]any {
	out := map[string]any{}
	if f.Description != "" {
		out["description"] = f.Description
	}
	switch f.Type {
	case TypeString:
		out["type"] = "string"
		if f.MinLen != nil {
			out["minLength"] = *f.MinLen
		}
		if f.MaxLen != nil {
			out["maxLength"] = *f.MaxLen
		}
	case TypeInteger:
		out["type"] = "integer"
		if f.Min != nil {
			out["minimum"] = *f.Min
		}
		if f.Max != nil {
			out["maximum"] = *f.Max
		}
	case TypeNumber:
		out["type"] = "number"
		if f.Min != nil {
			out["minimum"] = *f.Min
		}
		if f.Max != nil {
			out["maximum"] = *f.Max
		}
	case TypeBoolean:
		out["type"] = "boolean"
	case TypeEnum:
		out["type"] = "string"
		values := make([]any, len(f.Enum))
		for i, v := range f.Enum {
			values[i] = v
		}
		out["enum"] = values
	case TypeArray:
		out["type"] = "array"
		if f.Elem != nil {
			out["items"] = fieldSchema(*f.Elem)
		}
		if f.MinItems != nil {
			out["minItems"] = *f.MinItems
		}
		if f.MaxItems != nil {
			out["maxItems"] = *f.MaxItems
		}
	case TypeObject:
		out["type"] = "object"
		if len(f.Fields) > 0 {
			nested := map[string]any{}
			var required []string
			for _, nf := range f.Fields {
				nested[nf.Name] = fieldSchema(nf)
				if nf.Required {
					required = append(required, nf.Name)
				}
			}
			out["properties"] = nested
			if len(required) > 0 {
				out["required"] = required
			}
		}
	}
	if f.Default != nil {
		out["default"] = f.Default
	}
	return out
}
