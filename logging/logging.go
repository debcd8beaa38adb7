/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package logging provides the dockyard console logger. The logger travels
// in a context.Context; components log through InfoContext, WarnContext and
// friends so that a command's output settings reach every layer.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of a log message
type LogLevel int

// OutputType represents the output format for logs
type OutputType int

// Output types for different log formats
const (
	PlainOutput OutputType = iota
	ColorOutput
	JSONOutput
)

// Log levels ordered from least to most severe.
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// CustomLogger writes leveled, redacted messages to a console writer and
// command results to an output writer.
type CustomLogger struct {
	mu            sync.Mutex
	LogLevel      slog.Level
	OutputType    OutputType
	Quiet         bool
	Verbose       bool
	ConsoleWriter io.Writer
	OutputWriter  io.Writer
}

// jsonRecord is one line of JSON console output.
type jsonRecord struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func (l *CustomLogger) formatMessage(level LogLevel, message string) string {
	if l.OutputType != ColorOutput {
		return message
	}

	switch level {
	case DebugLevel:
		return color.HiBlackString("[DEBUG] %s", message)
	case InfoLevel:
		return color.HiGreenString("[INFO] %s", message)
	case WarnLevel:
		return color.HiYellowString("[WARN] %s", message)
	default:
		return color.HiRedString("[ERROR] %s", message)
	}
}

// enabledLocked must be called while holding l.mu. Quiet shows errors only,
// verbose shows everything, otherwise the configured level decides.
func (l *CustomLogger) enabledLocked(level LogLevel) bool {
	if l.Quiet {
		return level == ErrorLevel
	}
	if l.Verbose {
		return true
	}
	return levelToSlog(level) >= l.LogLevel
}

func levelToSlog(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *CustomLogger) log(level LogLevel, message string, args ...interface{}) {
	msg := RedactSensitivePatterns(fmt.Sprintf(message, args...))
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabledLocked(level) || l.ConsoleWriter == nil {
		return
	}

	var line string
	if l.OutputType == JSONOutput {
		data, err := json.Marshal(jsonRecord{
			Time:    now.Format(time.RFC3339),
			Level:   level.String(),
			Message: msg,
		})
		if err != nil {
			return
		}
		line = string(data) + "\n"
	} else {
		line = fmt.Sprintf("[%s] %s\n", now.Format("2006-01-02 15:04:05"), l.formatMessage(level, msg))
	}

	if _, err := io.WriteString(l.ConsoleWriter, line); err != nil {
		fmt.Fprint(os.Stderr, line)
	}
}

// NewCustomLogger creates a plain-text logger writing to stderr.
func NewCustomLogger(level slog.Level) *CustomLogger {
	return &CustomLogger{
		LogLevel:      level,
		OutputType:    PlainOutput,
		ConsoleWriter: os.Stderr,
		OutputWriter:  os.Stdout,
	}
}

// NewCustomLoggerWithOptions creates a logger from configuration strings.
// Unknown formats fall back to plain text, unknown levels to info.
func NewCustomLoggerWithOptions(logLevelStr, outputFormat string, quiet, verbose bool) *CustomLogger {
	logLevel := DetermineLogLevel(logLevelStr)
	if verbose && logLevel > slog.LevelDebug {
		logLevel = slog.LevelDebug
	}

	logger := NewCustomLogger(logLevel)
	logger.OutputType = ParseOutputType(outputFormat)
	logger.Quiet = quiet
	logger.Verbose = verbose
	return logger
}

// ParseOutputType maps a format name to an OutputType.
func ParseOutputType(format string) OutputType {
	switch strings.ToLower(format) {
	case "json":
		return JSONOutput
	case "color":
		return ColorOutput
	default:
		return PlainOutput
	}
}

// SetQuiet enables or disables quiet mode.
func (l *CustomLogger) SetQuiet(quiet bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Quiet = quiet
}

// SetVerbose enables or disables verbose mode.
func (l *CustomLogger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Verbose = verbose
}

// IsQuiet returns whether the logger is in quiet mode.
func (l *CustomLogger) IsQuiet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Quiet
}

// Info logs an informational message.
func (l *CustomLogger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *CustomLogger) Warn(format string, args ...interface{}) {
	l.log(WarnLevel, format, args...)
}

// Debug logs a debug message.
func (l *CustomLogger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Error logs an error message. It accepts either an error, a format string,
// or any other value as the first argument.
func (l *CustomLogger) Error(firstArg interface{}, args ...interface{}) {
	switch v := firstArg.(type) {
	case error:
		l.log(ErrorLevel, "%s", v.Error())
	case string:
		l.log(ErrorLevel, v, args...)
	default:
		l.log(ErrorLevel, "%v", v)
	}
}

// Output writes a command result to the output writer, as indented JSON
// when the logger is in JSON mode.
func (l *CustomLogger) Output(data interface{}) {
	l.mu.Lock()
	w, outputType := l.OutputWriter, l.OutputType
	l.mu.Unlock()

	if w == nil {
		return
	}

	var err error
	if outputType == JSONOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(data)
	} else {
		_, err = fmt.Fprintln(w, data)
	}
	if err != nil {
		l.Error("write output: %v", err)
	}
}

// Writer returns an io.Writer that logs each complete line written to it
// at the given level. Close flushes a trailing partial line.
func (l *CustomLogger) Writer(level LogLevel, prefix string) io.WriteCloser {
	return &lineWriter{logger: l, level: level, prefix: prefix}
}

type lineWriter struct {
	logger *CustomLogger
	level  LogLevel
	prefix string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := strings.IndexByte(string(w.buf), '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
	return nil
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	w.logger.log(w.level, "%s%s", w.prefix, line)
}

// DetermineLogLevel converts a string to slog.Level
func DetermineLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithLogger returns a new context with the provided logger.
func WithLogger(ctx context.Context, l *CustomLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from the context, or a default info
// logger when none is present.
func FromContext(ctx context.Context) *CustomLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*CustomLogger); ok && l != nil {
			return l
		}
	}
	return NewCustomLogger(slog.LevelInfo)
}

// InfoContext logs an informational message using the logger from context.
func InfoContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Info(message, args...)
}

// WarnContext logs a warning message using the logger from context.
func WarnContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Warn(message, args...)
}

// DebugContext logs a debug message using the logger from context.
func DebugContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Debug(message, args...)
}

// ErrorContext logs an error message using the logger from context.
func ErrorContext(ctx context.Context, firstArg interface{}, args ...interface{}) {
	FromContext(ctx).Error(firstArg, args...)
}

// OutputContext writes a command result using the logger from context.
func OutputContext(ctx context.Context, data interface{}) {
	FromContext(ctx).Output(data)
}
