package catalog

// FieldType enumerates the argument types a tool schema may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeEnum    FieldType = "enum"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field describes one argument of a tool.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool

	// Enum values, exact match. TypeEnum only.
	Enum []string

	// String length bounds. Nil means unbounded.
	MinLen *int
	MaxLen *int

	// Numeric bounds. Nil means unbounded.
	Min *float64
	Max *float64

	// Array cardinality bounds and element type.
	MinItems *int
	MaxItems *int
	Elem     *Field

	// Nested fields. TypeObject only.
	Fields []Field

	// Default is applied after all checks when the field is absent.
	Default any
}

// Schema is the ordered field list of one tool's arguments.
type Schema struct {
	Fields []Field
}

// Field returns the schema field with the given canonical name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Constructors below keep the catalog entries compact.

// String declares a string field.
func String(name, desc string) Field {
	return Field{Name: name, Type: TypeString, Description: desc}
}

// Integer declares an integer field.
func Integer(name, desc string) Field {
	return Field{Name: name, Type: TypeInteger, Description: desc}
}

// Boolean declares a boolean field.
func Boolean(name, desc string) Field {
	return Field{Name: name, Type: TypeBoolean, Description: desc}
}

// Enum declares an enum field with a fixed value set.
func Enum(name, desc string, values ...string) Field {
	return Field{Name: name, Type: TypeEnum, Description: desc, Enum: values}
}

// StringArray declares an array-of-strings field.
func StringArray(name, desc string) Field {
	elem := String("", "")
	return Field{Name: name, Type: TypeArray, Description: desc, Elem: &elem}
}

// Req marks the field required.
func (f Field) Req() Field {
	f.Required = true
	return f
}

// Len bounds a string's length. Pass a negative bound to leave that
// side open.
func (f Field) Len(min, max int) Field {
	if min >= 0 {
		f.MinLen = &min
	}
	if max >= 0 {
		f.MaxLen = &max
	}
	return f
}

// Range bounds a numeric field.
func (f Field) Range(min, max float64) Field {
	f.Min = &min
	f.Max = &max
	return f
}

// Items bounds an array's cardinality. Pass a negative bound to leave
// that side open.
func (f Field) Items(min, max int) Field {
	if min >= 0 {
		f.MinItems = &min
	}
	if max >= 0 {
		f.MaxItems = &max
	}
	return f
}

// WithDefault sets the value applied when the field is absent.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}
