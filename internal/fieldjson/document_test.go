package fieldjson

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

const testManifest = `
version: 1
name: attestation
fields:
  - name: org
    type: string
    description: Requesting organization
  - name: operator
    type: string
  - name: count
    type: integer
    optional: true
  - name: nonce
    optional: true
`

func documentsEqual(a, b Document) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}

func mustManifestSchema(t *testing.T) *Schema {
	t.Helper()
	m, err := ParseManifestBytes([]byte(testManifest))
	if err != nil {
		t.Fatalf("ParseManifestBytes() failed: %v", err)
	}
	s, err := m.Schema()
	if err != nil {
		t.Fatalf("Schema() failed: %v", err)
	}
	return s
}

func TestManifest(t *testing.T) {
	t.Parallel()

	t.Run("parse", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		if s.Name() != "attestation" || s.Len() != 4 {
			t.Fatalf("schema = %s with %d fields", s.Name(), s.Len())
		}
		kinds := []Kind{Required, Required, Optional, Optional}
		for i, f := range s.Fields() {
			if f.Kind != kinds[i] {
				t.Errorf("field %s kind = %s, want %s", f.Name, f.Kind, kinds[i])
			}
		}
		js := s.JSONSchema()
		if !slices.Equal(js.Required, []string{"org", "operator"}) {
			t.Errorf("Required = %v", js.Required)
		}
		org, _ := js.Properties.Get("org")
		if org.Type != "string" || org.Description != "Requesting organization" {
			t.Errorf("org = %+v", org)
		}
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "record.yaml")
		if err := os.WriteFile(path, []byte(testManifest), 0o600); err != nil {
			t.Fatal(err)
		}
		m, err := ParseManifest(path)
		if err != nil {
			t.Fatalf("ParseManifest() failed: %v", err)
		}
		if len(m.Fields) != 4 {
			t.Errorf("got %d fields", len(m.Fields))
		}
		if _, err := ParseManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("ParseManifest() on missing file should fail")
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			data string
		}{
			{"bad yaml", "version: [1"},
			{"wrong version", "version: 2\nfields: [{name: a}]"},
			{"no fields", "version: 1"},
			{"empty name", "version: 1\nfields: [{type: string}]"},
			{"unknown type", "version: 1\nfields: [{name: a, type: date}]"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				if _, err := ParseManifestBytes([]byte(tt.data)); err == nil {
					t.Error("ParseManifestBytes() expected error, got nil")
				}
			})
		}
	})

	t.Run("duplicate field", func(t *testing.T) {
		t.Parallel()
		m, err := ParseManifestBytes([]byte("version: 1\nfields: [{name: a}, {name: a}]"))
		if err != nil {
			t.Fatalf("ParseManifestBytes() failed: %v", err)
		}
		if _, err := m.Schema(); !fielderrors.HasCode(err, fielderrors.ErrInvalidSchema) {
			t.Errorf("Schema() error = %v, want %s", err, fielderrors.ErrInvalidSchema)
		}
	})
}

func TestDocument(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		doc := Document{}
		for name, v := range map[string]any{"org": "Turing", "operator": "Jason", "nonce": map[string]any{"v": "a36f0149"}} {
			if err := doc.Set(name, v); err != nil {
				t.Fatal(err)
			}
		}
		dir := t.TempDir()
		var c Codec
		if _, err := c.Write(dir, s, &doc); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		if got := listDir(t, dir); !slices.Equal(got, []string{"nonce.json", "operator.json", "org.json"}) {
			t.Fatalf("files = %v", got)
		}
		if got := readFile(t, dir, "nonce.json"); got != "{\n  \"v\": \"a36f0149\"\n}" {
			t.Errorf("nonce.json = %q", got)
		}
		rec, err := c.Read(dir, s)
		if err != nil {
			t.Fatalf("Read() failed: %v", err)
		}
		got := *rec.(*Document)
		if !documentsEqual(got, doc) {
			t.Errorf("Read() = %v, want %v", got, doc)
		}
		if string(got["org"]) != `"Turing"` {
			t.Errorf("org = %s", got["org"])
		}
		if _, ok := got["count"]; ok {
			t.Error("count should be absent")
		}
	})

	t.Run("explicit null optional", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		doc := Document{"org": []byte(`"a"`), "operator": []byte(`"b"`), "nonce": []byte("null")}
		dir := t.TempDir()
		var c Codec
		report, err := c.Write(dir, s, doc)
		if err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		if report.Fields[3].Outcome != SkippedAbsent {
			t.Errorf("nonce outcome = %s, want absent", report.Fields[3].Outcome)
		}
		rec, err := c.Read(dir, s)
		if err != nil {
			t.Fatalf("Read() failed: %v", err)
		}
		if _, ok := (*rec.(*Document))["nonce"]; ok {
			t.Error("nonce should be absent after read")
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name    string
			file    string
			content string
		}{
			{"string got number", "org.json", "12"},
			{"integer got float", "count.json", "1.5"},
			{"integer got string", "count.json", `"1"`},
			{"trailing data", "org.json", `"a" "b"`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				s := mustManifestSchema(t)
				dir := t.TempDir()
				files := map[string]string{"org.json": `"a"`, "operator.json": `"b"`}
				files[tt.file] = tt.content
				for name, content := range files {
					if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
						t.Fatal(err)
					}
				}
				var c Codec
				if _, err := c.Read(dir, s); !fielderrors.HasCode(err, fielderrors.ErrMalformedField) {
					t.Errorf("Read() error = %v, want %s", err, fielderrors.ErrMalformedField)
				}
			})
		}
	})

	t.Run("type mismatch on write", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		doc := Document{}
		if err := doc.Set("org", 5); err != nil {
			t.Fatal(err)
		}
		if err := doc.Set("operator", "b"); err != nil {
			t.Fatal(err)
		}
		dir := t.TempDir()
		var c Codec
		if _, err := c.Write(dir, s, doc); !fielderrors.HasCode(err, fielderrors.ErrSerialization) {
			t.Fatalf("Write() error = %v, want %s", err, fielderrors.ErrSerialization)
		}
		if got := listDir(t, dir); len(got) != 0 {
			t.Errorf("files = %v, want none", got)
		}
	})

	t.Run("check before write", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		doc := Document{"org": []byte(`"a"`), "operator": []byte(`"b"`), "count": []byte(`"many"`)}
		err := s.Check(doc)
		if !fielderrors.HasCode(err, fielderrors.ErrSerialization) {
			t.Fatalf("Check() error = %v, want %s", err, fielderrors.ErrSerialization)
		}
		var fe *fielderrors.FieldError
		if !errors.As(err, &fe) || fe.Field() != "count" {
			t.Errorf("Check() error = %v, want field count", err)
		}
		doc["count"] = []byte(`2`)
		if err := s.Check(doc); err != nil {
			t.Errorf("Check() failed: %v", err)
		}
	})

	t.Run("invalid raw value", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		doc := Document{"org": []byte(`{`), "operator": []byte(`"b"`)}
		var c Codec
		if _, err := c.Write(t.TempDir(), s, doc); !fielderrors.HasCode(err, fielderrors.ErrSerialization) {
			t.Errorf("Write() error = %v, want %s", err, fielderrors.ErrSerialization)
		}
	})

	t.Run("wrong record type", func(t *testing.T) {
		t.Parallel()
		s := mustManifestSchema(t)
		var c Codec
		if _, err := c.Write(t.TempDir(), s, &attestation{}); !fielderrors.HasCode(err, fielderrors.ErrSerialization) {
			t.Errorf("Write() error = %v, want %s", err, fielderrors.ErrSerialization)
		}
	})
}

func TestCheckJSONType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data string
		typ  string
		ok   bool
	}{
		{`"x"`, "string", true},
		{`1`, "number", true},
		{`1.5`, "number", true},
		{`7`, "integer", true},
		{`true`, "boolean", true},
		{`{"a":1}`, "object", true},
		{`[1,2]`, "array", true},
		{`null`, "string", true},
		{`[1]`, "", true},
		{`1`, "string", false},
		{`"x"`, "boolean", false},
		{`{}`, "array", false},
		{`[]`, "object", false},
	}
	for _, tt := range tests {
		err := checkJSONType([]byte(tt.data), tt.typ)
		if (err == nil) != tt.ok {
			t.Errorf("checkJSONType(%s, %q) = %v, want ok=%v", tt.data, tt.typ, err, tt.ok)
		}
	}
}
