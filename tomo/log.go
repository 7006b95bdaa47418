package tomo

import (
	"fmt"
	"strings"
	"time"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	// Verbose is set when we want per-frame-group logging.
	Verbose bool

	mode = InfoMode
)

// Logger provides a way for the pipeline to log messages at different severities.
type Logger interface {
	// Debugf formats its arguments analogous to fmt.Printf and records the text as a log
	// message at Debug level.
	Debugf(format string, args ...interface{})

	// Infof is like Debugf, but at Info level.
	Infof(format string, args ...interface{})

	// Warningf is like Debugf, but at Warning level.
	Warningf(format string, args ...interface{})

	// Errorf is like Debugf, but at Error level.
	Errorf(format string, args ...interface{})

	// Criticalf is like Debugf, but at Critical level.
	Criticalf(format string, args ...interface{})

	// Shutdown makes sure logs are closed.
	Shutdown()
}

// SetLogMode sets the severity required for a log message to be printed.
// For example, SetLogMode(tomo.WarningMode) will log any calls using
// Warningf, Errorf, or Criticalf.  To turn off all logging, use SilentMode.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

// LogMode returns the current severity threshold.
func LogMode() ModeFlag {
	return mode
}

var modeNames = []string{"debug", "info", "warning", "error", "critical", "silent"}

func (m ModeFlag) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode %d", uint(m))
}

// ParseLogMode returns the mode for a level name such as "debug" or "warning".
func ParseLogMode(level string) (ModeFlag, error) {
	for i, name := range modeNames {
		if strings.EqualFold(level, name) {
			return ModeFlag(i), nil
		}
	}
	return InfoMode, fmt.Errorf("unknown log level %q, expected one of %s", level, strings.Join(modeNames, ", "))
}

func Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		logger.Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if mode <= WarningMode {
		logger.Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if mode <= ErrorMode {
		logger.Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if mode <= CriticalMode {
		logger.Criticalf(format, args...)
	}
}

// Shutdown closes any log file opened by LogConfig.SetLogger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog adds elapsed time to logging.  A TimeLog made for a pipeline stage
// also prefixes each message with the stage and, once set, the worker rank.
// Example:
//     tlog := NewStageLog(2, 5, "fbp (astra_recon)")
//     ...
//     tlog.ForRank(3).Infof("wrote %d frames", n)
//     // [stage 2/5 fbp (astra_recon) rank 3] wrote 16 frames: 1.2s
type TimeLog struct {
	logger Logger
	start  time.Time
	prefix string
}

func NewTimeLog() TimeLog {
	return TimeLog{logger: logger, start: time.Now()}
}

// NewStageLog returns a TimeLog for stage n, counted from 1, of a run with the
// given number of stages.
func NewStageLog(n, stages int, plugin string) TimeLog {
	t := NewTimeLog()
	t.prefix = fmt.Sprintf("stage %d/%d %s", n, stages, plugin)
	return t
}

// ForRank returns a copy of the TimeLog that also names a worker rank.  The
// start time is shared.
func (t TimeLog) ForRank(rank int) TimeLog {
	if t.prefix == "" {
		t.prefix = fmt.Sprintf("rank %d", rank)
	} else {
		t.prefix = fmt.Sprintf("%s rank %d", t.prefix, rank)
	}
	return t
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t TimeLog) format(format string) string {
	if t.prefix == "" {
		return format + ": %s\n"
	}
	return "[" + strings.ReplaceAll(t.prefix, "%", "%%") + "] " + format + ": %s\n"
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		t.logger.Debugf(t.format(format), append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		t.logger.Infof(t.format(format), append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	if mode <= WarningMode {
		t.logger.Warningf(t.format(format), append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	if mode <= ErrorMode {
		t.logger.Errorf(t.format(format), append(args, time.Since(t.start))...)
	}
}
