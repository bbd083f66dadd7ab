// Reconstructs a record from its per-field JSON files.

package fieldjson

import (
	"errors"
	"io/fs"
	"os"

	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

// Read returns a fresh record built from the field files in dir.
//
// A missing file for an Optional field decodes as absent; a missing file for
// a Required field fails with ErrMissingRequiredField. No record is returned
// on error.
func (c *Codec) Read(dir string, s *Schema) (any, error) {
	rec := s.New()
	for i := range s.fields {
		f := &s.fields[i]
		path := s.Path(dir, f.Name)
		data, err := readField(f, path)
		if err != nil {
			return nil, err
		}
		if err := f.Decode(rec, data); err != nil {
			return nil, fielderrors.Malformed(f.Name, path, err).WithDetail("kind", f.Kind.String()).WithDetail("bytes", len(data))
		}
	}
	c.logger().Debug("Read record", "dir", dir, "schema", s.name, "fields", len(s.fields))
	return rec, nil
}

// readField returns the raw JSON for a field: the file content when the file
// exists, the null literal when an optional field has no file.
func readField(f *Field, path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from a validated field name
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fielderrors.IO(f.Name, path, "failed to read field file", err)
	}
	if f.Kind == Required {
		return nil, fielderrors.MissingRequired(f.Name, path).WithDetail("kind", f.Kind.String())
	}
	return absent(), nil
}

// Read loads a *T from dir using the zero Codec and the schema of T.
func Read[T any](dir string) (*T, error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, err
	}
	var c Codec
	rec, err := c.Read(dir, s)
	if err != nil {
		return nil, err
	}
	return rec.(*T), nil
}
