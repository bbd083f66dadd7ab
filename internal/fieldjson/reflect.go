// Builds schemas from Go struct types using reflection.

package fieldjson

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

// schemaCache maps reflect.Type to *cachedSchema.
var schemaCache sync.Map

type cachedSchema struct {
	schema *Schema
	err    error
}

// SchemaOf returns the schema of struct type T.
//
// Records passed to the schema's Write and returned by Read are *T.
func SchemaOf[T any]() (*Schema, error) {
	return SchemaFor(reflect.TypeFor[T]())
}

// SchemaFor returns the schema of a struct type (or pointer to struct).
//
// Field names follow encoding/json: the json tag name when set, otherwise
// the Go field name. Unexported fields and fields tagged "-" are skipped.
// Embedded structs without a json tag are flattened. A field is Optional when
// its json tag carries omitempty or omitzero.
//
// The result is computed once per type and cached.
func SchemaFor(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fielderrors.InvalidSchema("", "nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := schemaCache.Load(t); ok {
		c := v.(*cachedSchema)
		return c.schema, c.err
	}
	s, err := buildSchema(t)
	v, _ := schemaCache.LoadOrStore(t, &cachedSchema{schema: s, err: err})
	c := v.(*cachedSchema)
	return c.schema, c.err
}

func buildSchema(t reflect.Type) (*Schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fielderrors.InvalidSchema("", fmt.Sprintf("type must be a struct or pointer to struct, got %s", t.Kind()))
	}

	// Struct types go to $defs by reference so that recursive types
	// terminate; the root object is the definition the top-level $ref names.
	r := jsonschema.Reflector{Anonymous: true}
	top := r.ReflectFromType(t)
	js := top
	if name, ok := strings.CutPrefix(top.Ref, "#/$defs/"); ok && top.Definitions[name] != nil {
		js = top.Definitions[name]
	}
	required := make(map[string]bool, len(js.Required))
	for _, name := range js.Required {
		required[name] = true
	}

	var fields []Field
	if err := collectFields(t, nil, &fields); err != nil {
		return nil, err
	}
	for i := range fields {
		f := &fields[i]
		if js.Properties == nil {
			continue
		}
		if prop, ok := js.Properties.Get(f.Name); ok {
			f.prop = prop
			f.Description = prop.Description
			if !required[f.Name] {
				f.Kind = Optional
			}
		}
	}

	s := &Schema{
		name:   t.Name(),
		fields: fields,
		defs:   top.Definitions,
		newRecord: func() any {
			return reflect.New(t).Interface()
		},
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// collectFields appends a Field for every exported struct field of t. index
// is the path from the record root to t.
func collectFields(t reflect.Type, index []int, out *[]Field) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts := parseTag(tag)
		path := append(append([]int(nil), index...), i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				return fielderrors.InvalidSchema(sf.Name, "embedded pointer structs are not supported")
			}
			if ft.Kind() == reflect.Struct {
				if !sf.IsExported() {
					return fielderrors.InvalidSchema(sf.Name, "unexported embedded structs are not supported")
				}
				if err := collectFields(ft, path, out); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		kind := Required
		if opts.has("omitempty") || opts.has("omitzero") {
			kind = Optional
		}
		*out = append(*out, Field{
			Name:   name,
			Kind:   kind,
			Type:   sf.Type,
			Encode: structEncoder(path),
			Decode: structDecoder(path),
		})
	}
	return nil
}

// structEncoder returns an Encode function reading the field at path from a
// *T record.
func structEncoder(path []int) func(rec any) ([]byte, error) {
	return func(rec any) ([]byte, error) {
		v, err := structValue(rec)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v.FieldByIndex(path).Interface())
	}
}

// structDecoder returns a Decode function unmarshaling into the field at
// path of a *T record.
func structDecoder(path []int) func(rec any, data []byte) error {
	return func(rec any, data []byte) error {
		v, err := structValue(rec)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, v.FieldByIndex(path).Addr().Interface())
	}
}

func structValue(rec any) (reflect.Value, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("record must be a non-nil pointer to struct, got %T", rec)
	}
	return v.Elem(), nil
}

// tagOptions is the comma-separated list following the name in a json tag.
type tagOptions string

func parseTag(tag string) (string, tagOptions) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, tagOptions(opts)
}

func (o tagOptions) has(opt string) bool {
	for s := range strings.SplitSeq(string(o), ",") {
		if s == opt {
			return true
		}
	}
	return false
}
