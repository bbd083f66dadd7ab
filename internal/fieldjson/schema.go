// Defines field descriptors and record schemas.

package fieldjson

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

// fileExt is appended to the field name to form the field file name.
const fileExt = ".json"

// Kind tells whether a field may be absent.
type Kind int

const (
	// Required fields are always written and must exist on read.
	Required Kind = iota
	// Optional fields are skipped when absent and read back as absent when
	// their file is missing.
	Optional
)

func (k Kind) String() string {
	switch k {
	case Required:
		return "required"
	case Optional:
		return "optional"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field describes one named field of a record.
type Field struct {
	// Name is used verbatim as the file name stem.
	Name string
	Kind Kind
	// Type is the Go type of the value, nil for dynamic fields.
	Type        reflect.Type
	Description string

	// Encode returns the JSON encoding of the field value in rec. Output that
	// is not valid JSON fails the write with ErrSerialization.
	Encode func(rec any) ([]byte, error)
	// Decode stores the value decoded from data into rec. data is the null
	// literal when the field is absent.
	Decode func(rec any, data []byte) error

	prop *jsonschema.Schema
}

// Schema is an ordered, validated list of fields for one record type.
type Schema struct {
	name      string
	fields    []Field
	newRecord func() any
	// defs holds the nested types referenced by reflected properties.
	defs jsonschema.Definitions
}

// NewSchema creates a schema from hand-written field descriptors.
//
// newRecord must return a fresh, writable record (typically a pointer) that
// the fields' Decode functions fill in.
func NewSchema(name string, newRecord func() any, fields ...Field) (*Schema, error) {
	if newRecord == nil {
		return nil, fielderrors.InvalidSchema("", "record constructor is required")
	}
	s := &Schema{
		name:      name,
		fields:    make([]Field, len(fields)),
		newRecord: newRecord,
	}
	copy(s.fields, fields)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the record name.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns the fields in declared order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Lookup returns the field with the given name.
func (s *Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// New returns a fresh record.
func (s *Schema) New() any {
	return s.newRecord()
}

// Path returns the field file path for name inside dir.
func (s *Schema) Path(dir, name string) string {
	return filepath.Join(dir, name+fileExt)
}

// Validate checks that every field can be mapped to its own file.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.fields))
	for i, f := range s.fields {
		if err := validateFieldName(f.Name); err != nil {
			return fielderrors.InvalidSchema(f.Name, fmt.Sprintf("field %d: %v", i, err))
		}
		if seen[f.Name] {
			return fielderrors.InvalidSchema(f.Name, "duplicate field name")
		}
		seen[f.Name] = true
		if f.Kind != Required && f.Kind != Optional {
			return fielderrors.InvalidSchema(f.Name, fmt.Sprintf("invalid kind %s", f.Kind))
		}
		if f.Encode == nil || f.Decode == nil {
			return fielderrors.InvalidSchema(f.Name, "encode and decode are required")
		}
	}
	return nil
}

func validateFieldName(name string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("name %q contains a path separator or NUL", name)
	}
	return nil
}

// JSONSchema returns a JSON Schema describing the record as a single object.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                s.name,
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	if len(s.defs) != 0 {
		out.Definitions = s.defs
	}
	for _, f := range s.fields {
		prop := &jsonschema.Schema{}
		if f.prop != nil {
			p := *f.prop
			prop = &p
		}
		if prop.Description == "" {
			prop.Description = f.Description
		}
		out.Properties.Set(f.Name, prop)
		if f.Kind == Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}
