// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	BufferSize int // recent-event ring buffer capacity
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "modelctl", "logs", "modelctl.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		BufferSize: 500,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() (zerolog.Logger, *RingBuffer) {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified
// configuration. The returned RingBuffer holds the most recent events
// for the status surface.
func NewLoggerWithConfig(cfg LogConfig) (zerolog.Logger, *RingBuffer) {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	ring := NewRingBuffer(cfg.BufferSize)
	writers = append(writers, ring)

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	logger := zerolog.New(writer).
		With().
		Timestamp().
		Logger()

	return logger, ring
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// SetInfoLevel sets the global log level to info.
func SetInfoLevel() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// WithComponent returns a child logger scoped to a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithJobID adds a training job ID to the logger context.
func WithJobID(logger zerolog.Logger, jobID string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Logger()
}

// WithVersion adds a model version label to the logger context.
func WithVersion(logger zerolog.Logger, version string) zerolog.Logger {
	return logger.With().Str("version", version).Logger()
}

// LogDeployment logs a deployment transition.
func LogDeployment(logger zerolog.Logger, version, previous string) {
	logger.Info().
		Str("event", "deployment").
		Str("version", version).
		Str("previous", previous).
		Msg("Model deployed")
}

// LogJobStage logs a retraining pipeline stage transition.
func LogJobStage(logger zerolog.Logger, jobID, stage, message string) {
	logger.Info().
		Str("event", "job_stage").
		Str("job_id", jobID).
		Str("stage", stage).
		Msg(message)
}

// LogAlert logs a raised performance alert.
func LogAlert(logger zerolog.Logger, alertID, alertType, severity, message string) {
	logger.Warn().
		Str("event", "alert").
		Str("alert_id", alertID).
		Str("type", alertType).
		Str("severity", severity).
		Msg(message)
}
