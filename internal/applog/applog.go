// Package applog builds the prefixed *log.Logger instances every
// component uses, optionally tee'd through a rotating file sink via
// gopkg.in/natefinch/lumberjack.v2 when --log-file is given.
package applog

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared log output every component-scoped
// logger is built from.
type Options struct {
	// LogFile, if non-empty, rotates log output through lumberjack in
	// addition to stderr.
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Sink is the shared io.Writer every component's *log.Logger writes to.
type Sink struct {
	w io.Writer
}

// NewSink builds the shared writer: stderr alone, or stderr plus a
// rotating file when opts.LogFile is set.
func NewSink(opts Options) *Sink {
	if opts.LogFile == "" {
		return &Sink{w: os.Stderr}
	}

	roller := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    nonZero(opts.MaxSizeMB, 50),
		MaxBackups: nonZero(opts.MaxBackups, 5),
		MaxAge:     nonZero(opts.MaxAgeDays, 30),
		Compress:   true,
	}
	return &Sink{w: io.MultiWriter(os.Stderr, roller)}
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// For returns a *log.Logger bracketing every line with "[component] ".
func (s *Sink) For(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}
