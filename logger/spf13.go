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

package logger

import (
	"io"
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// Write lets *logger serve as jwalterweatherman's output destination:
// every line jww would otherwise print to stdout instead becomes one
// Info-level entry, tagged with the same component field as everything
// else this Logger writes.
func (l *logger) Write(p []byte) (int, error) {
	l.entry.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// SetSPF13Level bridges the global jwalterweatherman logger (the
// logging library cobra and viper write deprecation/feedback lines
// through) so cmd/lighttpd2's CLI output lands in this Logger instead
// of going straight to the terminal. jww's stdout always goes to this
// Logger; a min outside DebugLevel..FatalLevel sends jww's log output
// to io.Discard and raises its threshold to critical.
func SetSPF13Level(l Logger, min Level) {
	impl, ok := l.(*logger)
	if !ok {
		return
	}

	jww.SetStdoutOutput(impl)
	switch min {
	case DebugLevel:
		jww.SetLogOutput(impl)
		jww.SetLogThreshold(jww.LevelTrace)
	case InfoLevel:
		jww.SetLogOutput(impl)
		jww.SetLogThreshold(jww.LevelInfo)
	case WarnLevel:
		jww.SetLogOutput(impl)
		jww.SetLogThreshold(jww.LevelWarn)
	case ErrorLevel:
		jww.SetLogOutput(impl)
		jww.SetLogThreshold(jww.LevelError)
	case FatalLevel:
		jww.SetLogOutput(impl)
		jww.SetLogThreshold(jww.LevelFatal)
	default:
		jww.SetLogOutput(io.Discard)
		jww.SetLogThreshold(jww.LevelCritical)
	}
}
