// Package logger carries a logrus logger through context.Context.
//
// Build scripts talk to the build system on stdout, so every logger created
// here writes to stderr unless told otherwise.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// L is the logger returned when none is attached to a context.
var L = New(logrus.InfoLevel, os.Stderr)

type contextKey struct{}

// New returns a text logger at level writing to out.
func New(level logrus.Level, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	return l
}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *logrus.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or L.
func FromContext(ctx context.Context) *logrus.Logger {
	l, ok := ctx.Value(contextKey{}).(*logrus.Logger)
	if !ok || l == nil {
		return L
	}
	return l
}

// Levels maps accepted level names to logrus levels.
func Levels() map[string]logrus.Level {
	return map[string]logrus.Level{
		"error":   logrus.ErrorLevel,
		"warning": logrus.WarnLevel,
		"warn":    logrus.WarnLevel,
		"info":    logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"trace":   logrus.TraceLevel,
	}
}

// ParseLevel resolves a level name; the empty string means info.
func ParseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.InfoLevel, nil
	}
	if lvl, ok := Levels()[strings.ToLower(name)]; ok {
		return lvl, nil
	}
	return logrus.InfoLevel, fmt.Errorf("unknown log level %q", name)
}
