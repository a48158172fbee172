// Package charmlog backs the domain logger with charmbracelet/log.
package charmlog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

// Logger writes structured entries through a charm logger.
type Logger struct {
	l *log.Logger
}

// New creates a logger writing to stderr. verbose enables debug entries.
func New(verbose bool) *Logger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, verbose bool) *Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return &Logger{l: log.NewWithOptions(w, log.Options{
		Prefix: "autospec",
		Level:  level,
	})}
}

func (c *Logger) Debug(msg string, fields ...interfaces.Field) {
	c.l.Debug(msg, interfaces.KeyValues(fields)...)
}

func (c *Logger) Info(msg string, fields ...interfaces.Field) {
	c.l.Info(msg, interfaces.KeyValues(fields)...)
}

func (c *Logger) Warn(msg string, fields ...interfaces.Field) {
	c.l.Warn(msg, interfaces.KeyValues(fields)...)
}

func (c *Logger) Error(msg string, fields ...interfaces.Field) {
	c.l.Error(msg, interfaces.KeyValues(fields)...)
}

// With returns a logger that adds fields to every entry.
func (c *Logger) With(fields ...interfaces.Field) interfaces.Logger {
	return &Logger{l: c.l.With(interfaces.KeyValues(fields)...)}
}
