// Package logging builds the zerolog loggers used across phonelookup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output and format identifiers accepted by Config.
const (
	OutputStderr  = "stderr"
	OutputFile    = "file"
	FormatJSON    = "json"
	FormatConsole = "console"

	// FieldComponent is the log field naming the subsystem that emitted a line.
	FieldComponent = "component"
)

// Config describes where and how to log.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
	Caller bool
}

// LogPathResult is the outcome of building a logger. When a log file was
// requested but could not be opened, the logger falls back to stderr and
// FallbackUsed/FallbackReason say why.
type LogPathResult struct {
	Logger         zerolog.Logger
	UsingFile      bool
	FilePath       string
	FallbackUsed   bool
	FallbackReason string

	file      *os.File
	closeOnce sync.Once
}

// Close releases the log file handle, if any. Safe to call more than once.
func (r *LogPathResult) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.file != nil {
			err = r.file.Close()
		}
	})
	return err
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, cfg Config) zerolog.Logger {
	return build(w, cfg)
}

// NewLoggerWithPath builds a logger from cfg, opening the log file when
// cfg.Output is "file". A file that cannot be opened is not fatal.
func NewLoggerWithPath(cfg Config) *LogPathResult {
	result := &LogPathResult{}

	if cfg.Output != OutputFile || cfg.File == "" {
		result.Logger = build(os.Stderr, cfg)
		return result
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		result.FallbackUsed = true
		result.FallbackReason = fmt.Sprintf("cannot create log directory: %v", err)
		result.Logger = build(os.Stderr, cfg)
		return result
	}

	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		result.FallbackUsed = true
		result.FallbackReason = fmt.Sprintf("cannot open log file: %v", err)
		result.Logger = build(os.Stderr, cfg)
		return result
	}

	result.file = f
	result.UsingFile = true
	result.FilePath = cfg.File
	// Files always get JSON; console formatting is for terminals.
	fileCfg := cfg
	fileCfg.Format = FormatJSON
	result.Logger = build(f, fileCfg)
	return result
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str(FieldComponent, component).Logger()
}

// PrintLogPathMessage tells the user where the logs are going.
func PrintLogPathMessage(w io.Writer, path string) {
	_, _ = fmt.Fprintf(w, "Logging to %s\n", path)
}

// PrintFallbackWarning tells the user file logging was not possible.
func PrintFallbackWarning(w io.Writer, reason string) {
	_, _ = fmt.Fprintf(w, "Warning: %s; logging to stderr\n", reason)
}

func build(w io.Writer, cfg Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(cfg.Format) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
