// Subcommand implementations.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maruel/ksid"

	"github.com/maruel/fieldjson/internal/config"
	"github.com/maruel/fieldjson/internal/fieldjson"
	"github.com/maruel/fieldjson/internal/history"
)

// env carries what every subcommand needs.
type env struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	logger *slog.Logger
}

// writeFlags are shared by write and new.
type writeFlags struct {
	manifest string
	in       string
	conflict string
	workers  int
	commit   bool
}

func (w *writeFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&w.manifest, "manifest", "", "Record manifest (YAML)")
	fs.StringVar(&w.in, "in", "-", "JSON object to write, - for stdin")
	fs.StringVar(&w.conflict, "conflict", cfg.Conflict, "Policy when a field file is created concurrently (skip, error)")
	fs.IntVar(&w.workers, "workers", cfg.Workers, "Number of field files written concurrently")
	fs.BoolVar(&w.commit, "commit", cfg.Git.Enabled, "Commit new field files to the enclosing git repository")
}

// apply copies explicitly set flags over the configuration.
func (w *writeFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "conflict":
			cfg.Conflict = w.conflict
		case "workers":
			cfg.Workers = w.workers
		case "commit":
			cfg.Git.Enabled = w.commit
		}
	})
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}
	return nil
}

func loadSchema(path string) (*fieldjson.Schema, error) {
	if path == "" {
		return nil, errors.New("-manifest is required")
	}
	m, err := fieldjson.ParseManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Schema()
}

func (e *env) cmdWrite(ctx context.Context, args []string) error {
	fs := newFlagSet("write")
	var wf writeFlags
	wf.register(fs, e.cfg)
	dir := fs.String("dir", "", "Existing record directory")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	cfg := *e.cfg
	wf.apply(fs, &cfg)
	return e.write(ctx, &cfg, &wf, *dir, *dir)
}

func (e *env) cmdNew(ctx context.Context, args []string) error {
	fs := newFlagSet("new")
	var wf writeFlags
	wf.register(fs, e.cfg)
	root := fs.String("root", ".", "Directory under which the record directory is created")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg := *e.cfg
	wf.apply(fs, &cfg)
	dir := filepath.Join(*root, ksid.NewID().String())
	if err := os.Mkdir(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for record directories
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	if err := e.write(ctx, &cfg, &wf, dir, *root); err != nil {
		return err
	}
	_, err := fmt.Fprintln(e.stdout, dir)
	return err
}

// write stores the input document in dir. When commits are enabled, the
// repository enclosing repoDir is used, or created at repoDir.
func (e *env) write(ctx context.Context, cfg *config.Config, wf *writeFlags, dir, repoDir string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := loadSchema(wf.manifest)
	if err != nil {
		return err
	}
	doc, err := e.readInput(wf.in, s)
	if err != nil {
		return err
	}
	codec, err := cfg.Codec(e.logger)
	if err != nil {
		return err
	}
	// Created paths are staged relative to the repository, not the cwd.
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	report, err := codec.Write(dir, s, &doc)
	if err != nil {
		return err
	}
	for _, f := range report.Fields {
		e.logger.InfoContext(ctx, "Field", "name", f.Name, "outcome", f.Outcome.String())
	}
	if !cfg.Git.Enabled {
		return nil
	}
	created := report.Created()
	repo, err := history.Open(ctx, repoDir, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Write %s %s", s.Name(), filepath.Base(dir))
	hash, err := repo.Commit(ctx, history.Author{}, msg, created)
	if err != nil {
		return err
	}
	if hash != "" {
		e.logger.InfoContext(ctx, "Committed", "repo", repo.Root(), "hash", hash, "files", len(created))
	}
	return nil
}

// readInput decodes a JSON object into a document. Undeclared keys, missing
// required fields and values of the wrong type are rejected before anything
// is written.
func (e *env) readInput(in string, s *fieldjson.Schema) (fieldjson.Document, error) {
	var data []byte
	var err error
	if in == "-" {
		data, err = io.ReadAll(e.stdin)
	} else {
		data, err = os.ReadFile(in) //nolint:gosec // G304: user-specified input path
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	doc := fieldjson.Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	for name := range doc {
		if _, ok := s.Lookup(name); !ok {
			return nil, fmt.Errorf("input has unknown field %q", name)
		}
	}
	for _, f := range s.Fields() {
		if _, ok := doc[f.Name]; !ok && f.Kind == fieldjson.Required {
			return nil, fmt.Errorf("input is missing required field %q", f.Name)
		}
	}
	if err := s.Check(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (e *env) cmdRead(_ context.Context, args []string) error {
	fs := newFlagSet("read")
	manifest := fs.String("manifest", "", "Record manifest (YAML)")
	dir := fs.String("dir", "", "Record directory")
	format := fs.String("format", "json", "Output format (json, yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	s, err := loadSchema(*manifest)
	if err != nil {
		return err
	}
	doc, err := e.read(s, *dir)
	if err != nil {
		return err
	}
	out, err := render(s, doc, *format)
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(out)
	return err
}

func (e *env) read(s *fieldjson.Schema, dir string) (fieldjson.Document, error) {
	codec, err := e.cfg.Codec(e.logger)
	if err != nil {
		return nil, err
	}
	rec, err := codec.Read(dir, s)
	if err != nil {
		return nil, err
	}
	return *rec.(*fieldjson.Document), nil
}

func (e *env) cmdSchema(_ context.Context, args []string) error {
	fs := newFlagSet("schema")
	manifest := fs.String("manifest", "", "Record manifest (YAML)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	s, err := loadSchema(*manifest)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(append(data, '\n'))
	return err
}

func (e *env) cmdLog(ctx context.Context, args []string) error {
	fs := newFlagSet("log")
	dir := fs.String("dir", "", "Record directory")
	n := fs.Int("n", 20, "Maximum number of commits")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	repo, err := history.Find(ctx, *dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(*dir)
	if err != nil {
		return err
	}
	commits, err := repo.Log(ctx, abs, *n)
	if err != nil {
		return err
	}
	if total, err := repo.CommitCount(ctx); err == nil {
		e.logger.DebugContext(ctx, "History", "repo", repo.Root(), "commits", total, "shown", len(commits))
	}
	for _, c := range commits {
		if _, err := fmt.Fprintf(e.stdout, "%s %s %s <%s> %s\n", c.Hash[:12], c.When.Format("2006-01-02 15:04:05"), c.Author, c.AuthorEmail, c.Message); err != nil {
			return err
		}
	}
	return nil
}
