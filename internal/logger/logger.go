package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Log levels accepted in log.level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Encodings accepted in log.format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	globalLogger *Logger
	once         sync.Once
)

type options struct {
	format string
	out    zapcore.WriteSyncer
}

type Option func(*options)

// WithFormat selects the console or JSON encoder. Unknown values mean console.
func WithFormat(format string) Option {
	return func(o *options) { o.format = strings.ToLower(strings.TrimSpace(format)) }
}

// WithOutput redirects log output, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = zapcore.AddSync(w) }
}

// Get returns the process-wide logger. The settings of the first call win;
// later calls return the already built instance.
func Get(level string, opts ...Option) *Logger {
	once.Do(func() {
		globalLogger = New(level, opts...)
	})
	return globalLogger
}

// New builds a standalone logger. Commands and tests that must not touch
// the process-wide instance use it directly.
func New(level string, opts ...Option) *Logger {
	o := options{format: FormatConsole, out: zapcore.Lock(os.Stdout)}
	for _, opt := range opts {
		opt(&o)
	}
	return newZapLogger(strings.ToLower(strings.TrimSpace(level)), o)
}
