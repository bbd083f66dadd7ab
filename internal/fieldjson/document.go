// Dynamic records described by a YAML manifest instead of a Go type.

package fieldjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// manifestVersion is the only supported manifest format version.
const manifestVersion = 1

// Document is a dynamic record: field name to raw JSON value. A missing key
// is an absent value.
type Document map[string]json.RawMessage

// Set stores v encoded as JSON under name.
func (d Document) Set(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d[name] = data
	return nil
}

// Manifest describes the fields of a dynamic record.
type Manifest struct {
	Version int             `yaml:"version"`
	Name    string          `yaml:"name"`
	Fields  []ManifestField `yaml:"fields"`
}

// ManifestField describes one field of a dynamic record.
type ManifestField struct {
	Name        string `yaml:"name"`
	Optional    bool   `yaml:"optional,omitempty"`
	Type        string `yaml:"type,omitempty"` // empty means any JSON value
	Description string `yaml:"description,omitempty"`
}

var validTypes = map[string]bool{
	"":        true,
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
}

// ParseManifest reads and parses a manifest from a file.
// The path is provided by the CLI user, so file inclusion is expected.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified manifest path
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifestBytes(data)
}

// ParseManifestBytes parses a manifest from bytes.
func ParseManifestBytes(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Version != manifestVersion {
		return fmt.Errorf("unsupported manifest version: %d", m.Version)
	}
	if len(m.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if !validTypes[f.Type] {
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Schema returns the schema for *Document records described by m.
func (m *Manifest) Schema() (*Schema, error) {
	fields := make([]Field, 0, len(m.Fields))
	for _, mf := range m.Fields {
		kind := Required
		if mf.Optional {
			kind = Optional
		}
		fields = append(fields, Field{
			Name:        mf.Name,
			Kind:        kind,
			Description: mf.Description,
			Encode:      documentEncoder(mf.Name, mf.Type),
			Decode:      documentDecoder(mf.Name, kind, mf.Type),
			prop:        &jsonschema.Schema{Type: mf.Type, Description: mf.Description},
		})
	}
	return NewSchema(m.Name, func() any { return &Document{} }, fields...)
}

// documentEncoder rejects values the decoder for typ would refuse, so that a
// written file always reads back.
func documentEncoder(name, typ string) func(rec any) ([]byte, error) {
	return func(rec any) ([]byte, error) {
		d, err := asDocument(rec)
		if err != nil {
			return nil, err
		}
		data, ok := d[name]
		if !ok {
			return absent(), nil
		}
		if err := checkJSONType(data, typ); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func documentDecoder(name string, kind Kind, typ string) func(rec any, data []byte) error {
	return func(rec any, data []byte) error {
		d, err := asDocument(rec)
		if err != nil {
			return err
		}
		if kind == Optional && IsAbsent(data) {
			delete(d, name)
			return nil
		}
		if err := checkJSONType(data, typ); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		d[name] = buf.Bytes()
		return nil
	}
}

func asDocument(rec any) (Document, error) {
	switch d := rec.(type) {
	case *Document:
		if d == nil {
			return nil, errors.New("nil document")
		}
		if *d == nil {
			*d = Document{}
		}
		return *d, nil
	case Document:
		if d == nil {
			return nil, errors.New("nil document")
		}
		return d, nil
	default:
		return nil, fmt.Errorf("record must be a Document, got %T", rec)
	}
}

// checkJSONType verifies that data is a single JSON value of type typ. A
// null is accepted for any type.
func checkJSONType(data []byte, typ string) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	if v == nil || typ == "" {
		return nil
	}
	ok := false
	switch t := v.(type) {
	case string:
		ok = typ == "string"
	case bool:
		ok = typ == "boolean"
	case json.Number:
		if typ == "number" {
			ok = true
		} else if typ == "integer" {
			_, err := t.Int64()
			ok = err == nil
		}
	case map[string]any:
		ok = typ == "object"
	case []any:
		ok = typ == "array"
	}
	if !ok {
		return fmt.Errorf("expected %s, got %s", typ, bytes.TrimSpace(data))
	}
	return nil
}
