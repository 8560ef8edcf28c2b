package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerNames lists the loggers of all packages in this module
var LoggerNames = []string{
	"wire",
	"transport",
	"peer",
	"server",
	"state",
	"repo",
	"lockmgr",
}

// logLevels maps the accepted level names, lower case, to dragonboat levels
var logLevels = map[string]logger.LogLevel{
	"debug":   logger.DEBUG,
	"info":    logger.INFO,
	"warn":    logger.WARNING,
	"warning": logger.WARNING,
	"error":   logger.ERROR,
}

// stderrLogger writes "LEVEL | name | message" lines. It never writes to
// stdout, which carries the wire protocol of "serve --stdio".
type stderrLogger struct {
	name  string
	level logger.LogLevel
	out   *log.Logger
}

func newStderrLogger(name string, w io.Writer) *stderrLogger {
	return &stderrLogger{
		name:  name,
		level: logger.WARNING,
		out:   log.New(w, "", log.Ldate|log.Ltime),
	}
}

func (l *stderrLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *stderrLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, "DEBUG", format, args)
}

func (l *stderrLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, "INFO", format, args)
}

func (l *stderrLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, "WARN", format, args)
}

func (l *stderrLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, "ERROR", format, args)
}

func (l *stderrLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logf(logger.CRITICAL, "PANIC", "%s", []interface{}{msg})
	panic(msg)
}

func (l *stderrLogger) logf(min logger.LogLevel, tag, format string, args []interface{}) {
	if l.level < min {
		return
	}
	l.out.Printf("%-5s | %-9s | %s", tag, l.name, fmt.Sprintf(format, args...))
}

// CreateLogger is the dragonboat logger factory of this module.
func CreateLogger(pkgName string) logger.ILogger {
	return newStderrLogger(pkgName, os.Stderr)
}

// ParseLogLevel converts a level name (debug, info, warn, error) into a
// dragonboat log level.
func ParseLogLevel(level string) (logger.LogLevel, error) {
	if lvl, ok := logLevels[strings.ToLower(level)]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("invalid log level %q, must be one of debug, info, warn, error", level)
}

// InitLoggers installs CreateLogger and sets every logger in LoggerNames to
// level.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(CreateLogger)
	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
