// Package log configures the process-wide zerolog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Format selects the log encoding
type Format string

const (
	FormatAuto    Format = "auto" // console on a terminal, JSON otherwise
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds logging settings
type Config struct {
	Level  string `yaml:"level"`
	Format Format `yaml:"format"`
}

// DefaultConfig logs at info, format chosen from the output
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatAuto}
}

// Validate checks level and format
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case FormatAuto, FormatConsole, FormatJSON, "":
		return nil
	}
	return fmt.Errorf("invalid log format %q (want auto, console or json)", c.Format)
}

// Setup replaces the global logger. A nil out writes to stderr.
func Setup(config Config, out io.Writer) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if out == nil {
		out = os.Stderr
	}
	level, _ := zerolog.ParseLevel(strings.ToLower(config.Level))
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	w := out
	if useConsole(config.Format, out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

func useConsole(format Format, out io.Writer) bool {
	switch format {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
