// Writes each field of a record to its own JSON file.

package fieldjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

// ConflictPolicy selects what happens when the exclusive create of a field
// file fails because the file appeared after the existence check.
type ConflictPolicy int

const (
	// ConflictSkip treats the field as already persisted.
	ConflictSkip ConflictPolicy = iota
	// ConflictError fails the write with ErrFileCreateConflict.
	ConflictError
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictSkip:
		return "skip"
	case ConflictError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is what a write did for one field.
type Outcome int

const (
	// Written means a new field file was created.
	Written Outcome = iota
	// SkippedAbsent means the optional field was absent and not written.
	SkippedAbsent
	// SkippedExisting means the field file already existed.
	SkippedExisting
	// SkippedConflict means another writer created the file first.
	SkippedConflict
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case SkippedAbsent:
		return "absent"
	case SkippedExisting:
		return "exists"
	case SkippedConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// FieldResult is the outcome of writing one field.
type FieldResult struct {
	Name    string
	Path    string
	Outcome Outcome
}

// Report lists per-field outcomes of a successful write, in schema order.
type Report struct {
	Fields []FieldResult
}

// Created returns the paths of the files created by the write.
func (r *Report) Created() []string {
	var out []string
	for _, f := range r.Fields {
		if f.Outcome == Written {
			out = append(out, f.Path)
		}
	}
	return out
}

// Codec writes and reads records as per-field JSON files.
//
// The zero value is ready to use.
type Codec struct {
	// Conflict is the policy for a lost exclusive-create race.
	Conflict ConflictPolicy
	// ReadOnly is called once on every newly created file. Defaults to
	// MakeReadOnly.
	ReadOnly func(path string) error
	// Workers > 1 writes field files concurrently.
	Workers int
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// exists is replaced in tests to simulate a lost race.
	exists func(path string) (bool, error)
}

var errInvalidJSON = errors.New("encoder returned invalid JSON")

// MakeReadOnly removes all write permissions from path.
func MakeReadOnly(path string) error {
	return os.Chmod(path, 0o444)
}

// Write stores every present field of rec as "<dir>/<name>.json".
//
// Existing files are never modified: a field whose file exists is skipped.
// Optional fields that are absent are not written. On error, files already
// created for earlier fields remain on disk.
func (c *Codec) Write(dir string, s *Schema, rec any) (*Report, error) {
	if c.Workers > 1 {
		return c.writeParallel(dir, s, rec)
	}
	report := &Report{Fields: make([]FieldResult, 0, s.Len())}
	for i := range s.fields {
		f := &s.fields[i]
		data, err := encodeField(f, rec)
		if err != nil {
			return nil, err
		}
		res, err := c.writeField(dir, s, f, data)
		if err != nil {
			return nil, err
		}
		report.Fields = append(report.Fields, res)
	}
	return report, nil
}

// writeParallel encodes every field up front, then creates the files
// concurrently. The first error wins; fields not yet started are skipped.
func (c *Codec) writeParallel(dir string, s *Schema, rec any) (*Report, error) {
	encoded, err := encodeAll(s, rec)
	if err != nil {
		return nil, err
	}
	report := &Report{Fields: make([]FieldResult, len(s.fields))}
	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(c.Workers)
	for i := range s.fields {
		eg.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res, err := c.writeField(dir, s, &s.fields[i], encoded[i])
			if err != nil {
				return err
			}
			report.Fields[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// Check encodes every field of rec without touching the filesystem. It
// returns the error Write would fail with before creating any file.
func (s *Schema) Check(rec any) error {
	_, err := encodeAll(s, rec)
	return err
}

func encodeAll(s *Schema, rec any) ([][]byte, error) {
	encoded := make([][]byte, s.Len())
	for i := range s.fields {
		data, err := encodeField(&s.fields[i], rec)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}
	return encoded, nil
}

func encodeField(f *Field, rec any) ([]byte, error) {
	data, err := f.Encode(rec)
	if err != nil {
		return nil, fielderrors.Serialization(f.Name, err)
	}
	if !json.Valid(data) {
		return nil, fielderrors.Serialization(f.Name, errInvalidJSON)
	}
	return data, nil
}

// writeField persists one encoded field.
func (c *Codec) writeField(dir string, s *Schema, f *Field, data []byte) (FieldResult, error) {
	path := s.Path(dir, f.Name)
	res := FieldResult{Name: f.Name, Path: path}
	logger := c.logger()

	if f.Kind == Optional && IsAbsent(data) {
		res.Outcome = SkippedAbsent
		logger.Debug("Skipping absent field", "field", f.Name)
		return res, nil
	}

	exists, err := c.existsFn()(path)
	if err != nil {
		return res, fielderrors.IO(f.Name, path, "failed to stat field file", err)
	}
	if exists {
		res.Outcome = SkippedExisting
		logger.Debug("Field file exists", "field", f.Name, "path", path)
		return res, nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return res, fielderrors.Serialization(f.Name, err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G304: path is built from a validated field name
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			if c.Conflict == ConflictError {
				return res, fielderrors.Conflict(f.Name, path).Wrap(err)
			}
			res.Outcome = SkippedConflict
			logger.Debug("Field file created concurrently", "field", f.Name, "path", path)
			return res, nil
		}
		return res, fielderrors.IO(f.Name, path, "failed to create field file", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = file.Close()
		return res, fielderrors.IO(f.Name, path, "failed to write field file", err)
	}
	if err := file.Close(); err != nil {
		return res, fielderrors.IO(f.Name, path, "failed to close field file", err)
	}
	if err := c.readOnlyFn()(path); err != nil {
		return res, fielderrors.IO(f.Name, path, "failed to make field file read-only", err)
	}
	res.Outcome = Written
	logger.Debug("Wrote field file", "field", f.Name, "path", path, "bytes", buf.Len())
	return res, nil
}

func (c *Codec) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Codec) readOnlyFn() func(string) error {
	if c.ReadOnly != nil {
		return c.ReadOnly
	}
	return MakeReadOnly
}

func (c *Codec) existsFn() func(string) (bool, error) {
	if c.exists != nil {
		return c.exists
	}
	return pathExists
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write stores rec in dir using the zero Codec and the schema of T.
func Write[T any](dir string, rec *T) error {
	s, err := SchemaOf[T]()
	if err != nil {
		return err
	}
	var c Codec
	_, err = c.Write(dir, s, rec)
	return err
}
