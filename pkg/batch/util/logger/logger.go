package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel はログのレベルを表す型です。
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	output   io.Writer = os.Stderr
	format   = "console"
	base     = newLogger(output, format)
)

func newLogger(w io.Writer, f string) zerolog.Logger {
	if f == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// SetLogLevel はログレベルを設定します。
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		logLevel = LevelDebug
	case "INFO":
		logLevel = LevelInfo
	case "WARN":
		logLevel = LevelWarn
	case "ERROR":
		logLevel = LevelError
	case "FATAL":
		logLevel = LevelFatal
	default:
		fmt.Fprintf(os.Stderr, "警告: 不明なログレベル '%s' が指定されました。INFO レベルで続行します。\n", level)
		logLevel = LevelInfo
	}
}

// SetFormat は出力形式 ("console" または "json") を設定します。
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = strings.ToLower(f)
	base = newLogger(output, format)
}

// SetOutput はログの出力先を差し替えます。テストでの出力捕捉に使用します。
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = newLogger(output, format)
}

func enabled(level LogLevel) (zerolog.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return base, logLevel <= level
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	if l, ok := enabled(LevelDebug); ok {
		l.Debug().Msgf(format, v...)
	}
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	if l, ok := enabled(LevelInfo); ok {
		l.Info().Msgf(format, v...)
	}
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	if l, ok := enabled(LevelWarn); ok {
		l.Warn().Msgf(format, v...)
	}
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	if l, ok := enabled(LevelError); ok {
		l.Error().Msgf(format, v...)
	}
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	l, _ := enabled(LevelFatal)
	l.Fatal().Msgf(format, v...)
}
