// Package logging configures zerolog for fmsys. Human-facing output goes
// through the report package; the log records what fmsys did and why, on
// stderr and in a persistent log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogFile overrides the log file location
const EnvLogFile = "FMSYS_LOG_FILE"

// SystemLogFile is where runs as root log to
const SystemLogFile = "/var/log/fmsys/fmsys.log"

// levelFor maps the number of -v flags to a level. Warnings are always
// shown since checks report their findings separately.
func levelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}

// SetupLogger sends log records to stderr and to the log file. A log file
// that cannot be opened only costs the file output.
func SetupLogger(verbosity int) {
	zerolog.SetGlobalLevel(levelFor(verbosity))

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stderr.Fd()),
	}
	writers := []io.Writer{console}

	path := logFilePath(os.Geteuid())
	file, fileErr := openLogFile(path)
	if fileErr == nil {
		writers = append(writers, file)
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if verbosity >= 2 {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", path).Msg("log file unavailable, logging to stderr only")
	}
	log.Debug().Int("verbosity", verbosity).Str("logFile", path).Msg("logger ready")
}

// GetLogger returns the logger of one component
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// logFilePath honours FMSYS_LOG_FILE, then logs system-wide for root and
// below $XDG_STATE_HOME for everyone else
func logFilePath(euid int) string {
	if p := os.Getenv(EnvLogFile); p != "" {
		return p
	}
	if euid == 0 {
		return SystemLogFile
	}
	return filepath.Join(xdg.StateHome, "fmsys", "fmsys.log")
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %w", err)
	}
	return f, nil
}

// LogCommand records an external command about to run
func LogCommand(cmd string, args []string) {
	log.Debug().Str("command", cmd).Strs("args", args).Msg("running command")
}

// LogOperationStart records the start of an operation. Call the returned
// function when it ends to record its duration.
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("operation started")
	return func() {
		logger.Debug().Str("operation", operation).Dur("duration", time.Since(start)).Msg("operation finished")
	}
}
