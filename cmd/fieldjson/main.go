// Package main is the entry point for the fieldjson tool.
//
// fieldjson stores records as one read-only JSON file per field. Records are
// described by a YAML manifest. Configuration is read from a JSON file
// (fieldjson.json by default) and overridden by explicitly set CLI flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/fieldjson/internal/config"
	fielderrors "github.com/maruel/fieldjson/internal/errors"
)

const usage = `usage: fieldjson [-config FILE] [-log-level LEVEL] <command> [flags]

commands:
  write   write a JSON object as per-field files into an existing directory
  new     create a new record directory under a root and write into it
  read    print the record stored in a directory
  schema  print the JSON Schema of a manifest
  watch   print the record each time its field files change
  log     print the commit history of a record directory
  version print version and exit
`

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		logFieldError(err)
		fmt.Fprintf(os.Stderr, "fieldjson: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", config.DefaultPath, "Configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll := &slog.LevelVar{}
	ll.Set(level)
	slog.SetDefault(newLogger(os.Stderr, ll))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	e := &env{cfg: cfg, stdin: os.Stdin, stdout: os.Stdout, logger: slog.Default()}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "write":
		return e.cmdWrite(ctx, args)
	case "new":
		return e.cmdNew(ctx, args)
	case "read":
		return e.cmdRead(ctx, args)
	case "schema":
		return e.cmdSchema(ctx, args)
	case "watch":
		return e.cmdWatch(ctx, args)
	case "log":
		return e.cmdLog(ctx, args)
	case "version":
		printVersion(os.Stdout)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

// logFieldError logs the structured parts of a codec error at debug level.
func logFieldError(err error) {
	var fe *fielderrors.FieldError
	if !errors.As(err, &fe) {
		return
	}
	attrs := []any{"code", string(fe.Code()), "field", fe.Field(), "path", fe.Path()}
	for k, v := range fe.Details() {
		attrs = append(attrs, k, v)
	}
	slog.Debug("Field error", attrs...)
}

// newLogger returns a colored logger on a terminal and a plain one otherwise.
func newLogger(w *os.File, level slog.Leveler) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(w.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case int64:
				skip = t == 0 && a.Key != "bytes"
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion(w io.Writer) {
	version, goVersion, revision, dirty := getBuildInfo()
	_, _ = fmt.Fprintf(w, "fieldjson %s\n", version)
	_, _ = fmt.Fprintf(w, "  Go version: %s\n", goVersion)
	_, _ = fmt.Fprintf(w, "  Revision:   %s\n", revision)
	if dirty {
		_, _ = fmt.Fprintf(w, "  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
