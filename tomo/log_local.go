package tomo

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

type stdLogger struct {
	*lumberjack.Logger
}

var logger Logger = stdLogger{}

// LogConfig is the [logging] section of a run configuration.  Long
// reconstructions rotate through several files, so old ones are kept up to
// MaxBackups and gzipped.
type LogConfig struct {
	Logfile    string
	Level      string
	MaxSize    int `toml:"max_log_size"`
	MaxAge     int `toml:"max_log_age"`
	MaxBackups int `toml:"max_log_backups"`
}

// SetLogger sets the log level and creates a logger that saves to a rotating
// log file.
func (c *LogConfig) SetLogger() {
	if c != nil && c.Level != "" {
		m, err := ParseLogMode(c.Level)
		if err != nil {
			Warningf("%v; keeping level %s\n", err, mode)
		} else {
			SetLogMode(m)
		}
	}
	if c == nil || c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename:   c.Logfile,
		MaxSize:    c.MaxSize, // megabytes
		MaxAge:     c.MaxAge,  // days
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

func (slog stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf(" DEBUG "+format, args...)
}

func (slog stdLogger) Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

func (slog stdLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

func (slog stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

func (slog stdLogger) Criticalf(format string, args ...interface{}) {
	log.Printf(" CRITICAL "+format, args...)
}

func (slog stdLogger) Shutdown() {
	if slog.Logger != nil {
		log.Printf("Closing log file...\n")
		slog.Close()
	}
}
