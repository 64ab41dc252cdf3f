// Package logging wires the process-wide logger and adapts it to the
// small interface the rest of the program depends on.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used by every other package. Keeping it
// this small lets tests supply an in-memory implementation without pulling
// in logrus.
type Logger interface {
	Criticalf(format string, args ...any)
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
	Noticef(format string, args ...any)
	Warningf(format string, args ...any)
}

// Adapter wraps a *logrus.Logger to satisfy Logger.
type Adapter struct {
	*logrus.Logger
}

var _ Logger = (*Adapter)(nil)

func (a *Adapter) Criticalf(format string, args ...any) {
	a.Logger.Logf(logrus.FatalLevel, format, args...)
}

func (a *Adapter) Debugf(format string, args ...any) {
	a.Logger.Debugf(format, args...)
}

func (a *Adapter) Errorf(format string, args ...any) {
	a.Logger.Errorf(format, args...)
}

func (a *Adapter) Noticef(format string, args ...any) {
	a.Logger.Infof(format, args...)
}

func (a *Adapter) Warningf(format string, args ...any) {
	a.Logger.Warnf(format, args...)
}

// ErrInvalidLevel indicates an unrecognized log level string.
var ErrInvalidLevel = errors.New("invalid log level")

// New builds a logrus-backed Logger writing text-formatted lines to stderr.
func New(level string) (*Adapter, error) {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	lv, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lv)

	return &Adapter{Logger: l}, nil
}

func parseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info", "notice":
		return logrus.InfoLevel, nil
	case "trace", "debug":
		return logrus.DebugLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "fatal", "critical", "panic":
		return logrus.FatalLevel, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid levels are trace, debug, info, warning, error, critical)", ErrInvalidLevel, level)
	}
}

// SetLevel changes the adapter's logging level at runtime.
func (a *Adapter) SetLevel(level string) error {
	lv, err := parseLevel(level)
	if err != nil {
		return err
	}
	a.Logger.SetLevel(lv)
	return nil
}
