// Package logger provides the service-wide leveled logger. Upstream
// retry warnings, cache degradation notices, and alert scan reports all
// go through it. Output is one line per event, either timestamped plain
// text or a small JSON object, per the logging.format setting.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// ParseLevel maps a configured level string to a Level. Unknown values
// fall back to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger writes leveled log lines in text or JSON form.
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger. format "text" produces
// timestamped plain lines with source locations; any other value
// produces one JSON object per line with ts, level, and msg fields.
func Init(level, format string) {
	jsonFormat := strings.ToLower(format) != "text"
	flags := 0
	if !jsonFormat {
		flags = log.LstdFlags | log.Lmicroseconds | log.Lshortfile
	}
	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   jsonFormat,
		logger: log.New(os.Stderr, "", flags),
	}
}

type jsonLine struct {
	Time    string `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func (l *Logger) output(lv Level, tag, format string, args ...any) {
	if l == nil || l.level > lv {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.json {
		b, err := json.Marshal(jsonLine{
			Time:    time.Now().UTC().Format(time.RFC3339Nano),
			Level:   tag,
			Message: msg,
		})
		if err != nil {
			return
		}
		_ = l.logger.Output(3, string(b))
		return
	}
	_ = l.logger.Output(3, "["+tag+"] "+msg)
}

func Debug(format string, args ...any) {
	defaultLogger.output(DebugLevel, levelNames[DebugLevel], format, args...)
}

func Info(format string, args ...any) {
	defaultLogger.output(InfoLevel, levelNames[InfoLevel], format, args...)
}

func Warn(format string, args ...any) {
	defaultLogger.output(WarnLevel, levelNames[WarnLevel], format, args...)
}

func Error(format string, args ...any) {
	defaultLogger.output(ErrorLevel, levelNames[ErrorLevel], format, args...)
}

// Fatal logs regardless of the configured level and exits.
func Fatal(format string, args ...any) {
	defaultLogger.output(ErrorLevel, "FATAL", format, args...)
	os.Exit(1)
}
