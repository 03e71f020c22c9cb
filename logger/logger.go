/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package logger provides the structured logging facade used across
// httpengine: a small Level enum, a FuncLog injection point (so packages
// never import a concrete logger, only a constructor function), and a
// logrus-backed implementation with an hclog-compatible adapter for
// vendored libraries that expect one.
package logger

import (
	"io"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/sirupsen/logrus"
)

type Level uint8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is the interface every httpengine package logs through.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	Log(lvl Level, msg string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	AsHCLog() hclog.Logger
}

// FuncLog is the injection point: packages accept a FuncLog (possibly
// nil, meaning "use the default") rather than a concrete Logger.
type FuncLog func() Logger

type logger struct {
	entry *logrus.Entry
}

var defaultLogger = New(nil, InfoLevel, "httpengine")

// GetDefault returns the package-wide fallback Logger used whenever a
// FuncLog injection point is nil or returns nil, mirroring
// liblog.GetDefault() in the teacher's logger package.
func GetDefault() Logger {
	return defaultLogger
}

// New creates a Logger writing to w (os.Stderr if w is nil) at the given
// minimum level, with a component name field attached to every line.
func New(w io.Writer, min Level, component string) Logger {
	l := logrus.New()
	if w != nil {
		l.SetOutput(w)
	}
	l.SetLevel(min.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: l.WithField("component", component)}
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	return &logger{entry: l.entry.WithFields(fields)}
}

func (l *logger) Log(lvl Level, msg string, args ...interface{}) {
	l.entry.Logf(lvl.logrus(), msg, args...)
}

func (l *logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// AsHCLog adapts this Logger to the hclog.Logger interface expected by a
// few vendored dependencies (none currently linked directly, kept as the
// documented escape hatch the teacher's logger package also provides).
func (l *logger) AsHCLog() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Name: "httpengine", Output: l.entry.Writer()})
}

// LogIOError chooses info or debug for a connection-level I/O error per
// spec §7: EPIPE/ECONNRESET are expected under normal client churn and
// are logged at debug, everything else at info.
func LogIOError(l Logger, err error, format string, args ...interface{}) {
	if l == nil || err == nil {
		return
	}
	if isBenignReset(err) {
		l.Debugf(format, args...)
	} else {
		l.Infof(format, args...)
	}
}
