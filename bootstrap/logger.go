package bootstrap

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apigen/config"
)

// logOutput lets the log format change without rebuilding the loggers
// every component already holds.
type logOutput struct {
	base io.Writer
	w    atomic.Pointer[io.Writer]
}

func newLogOutput(base io.Writer, format string) *logOutput {
	o := &logOutput{base: base}
	o.setFormat(format)
	return o
}

func (o *logOutput) setFormat(format string) {
	var w io.Writer = o.base
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: o.base, TimeFormat: time.RFC3339}
	}
	o.w.Store(&w)
}

func (o *logOutput) Write(p []byte) (int, error) {
	return (*o.w.Load()).Write(p)
}

// applyLogging sets the global level and the output format.
func applyLogging(out *logOutput, cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	out.setFormat(cfg.Format)
}

// NewLogger builds the process logger from the logging section. A nil
// writer logs to stdout.
func NewLogger(w io.Writer, cfg config.LoggingConfig) zerolog.Logger {
	logger, _ := newLogger(w, cfg)
	return logger
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (zerolog.Logger, *logOutput) {
	if w == nil {
		w = os.Stdout
	}
	out := newLogOutput(w, cfg.Format)
	applyLogging(out, cfg)
	return zerolog.New(out).With().Timestamp().Logger(), out
}
