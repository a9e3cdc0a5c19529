// Package logger wraps logrus with a colorized console formatter and a
// daily-rotated file sink, and adds run/group/step-scoped helper methods
// so callers don't have to repeat logrus.Fields boilerplate at every call
// site.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/stc/common"
)

// Log is the global logger instance, set by InitGlobalLogger.
var Log *StcLog

// StcLog wraps *logrus.Logger with stc-specific helper methods.
type StcLog struct {
	*logrus.Logger
}

// InitGlobalLogger initializes the global Log variable. When outputPath is
// non-empty, logs are written to a daily-rotated file under that directory
// via lfshook/file-rotatelogs and console output is suppressed; otherwise
// logs go to stdout with colorized output.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	log, err := newLogger(outputPath, verbose, defaultLevel)
	if err != nil {
		return err
	}
	Log = log
	return nil
}

func newLogger(outputPath string, verbose bool, defaultLevel logrus.Level) (*StcLog, error) {
	logger := logrus.New()

	level := defaultLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(true)

	displayLevel := ShowAboveWarn
	if verbose {
		displayLevel = ShowAll
	}

	fieldsOrder := []string{common.LogFieldRun, common.LogFieldScenario, common.LogFieldGroup, common.LogFieldStep}

	if outputPath == "" {
		logger.SetFormatter(&Formatter{
			TimestampFormat:        "15:04:05",
			DisplayLevelName:       displayLevel,
			DisableCaller:          true,
			FieldsDisplayWithOrder: fieldsOrder,
		})
		logger.SetOutput(os.Stdout)
		return &StcLog{Logger: logger}, nil
	}

	if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
	}
	logFilePath := filepath.Join(outputPath, "stc.log")

	writer, err := rotatelogs.New(
		logFilePath+".%Y%m%d",
		rotatelogs.WithLinkName(logFilePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
	}

	fileFormatter := &Formatter{
		TimestampFormat:        "2006-01-02 15:04:05.000 MST",
		NoColors:               true,
		DisplayLevelName:       displayLevel,
		FieldsDisplayWithOrder: fieldsOrder,
		FieldSeparator:         " | ",
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return fmt.Sprintf(" [%s:%d %s]", filepath.Base(frame.File), frame.Line, filepath.Base(frame.Function))
		},
	}
	logger.SetFormatter(fileFormatter)

	logWriters := lfshook.WriterMap{}
	for _, lvl := range logrus.AllLevels {
		if logger.IsLevelEnabled(lvl) {
			logWriters[lvl] = writer
		}
	}
	logger.Hooks.Add(lfshook.NewHook(logWriters, fileFormatter))
	logger.SetOutput(io.Discard)

	return &StcLog{Logger: logger}, nil
}

func (xl *StcLog) logWithFields(level logrus.Level, fixed logrus.Fields, message string) {
	xl.Logger.WithFields(fixed).Log(level, message)
}

// WithRun returns an entry scoped to run_id.
func (xl *StcLog) WithRun(runID string) *logrus.Entry {
	return xl.Logger.WithField(common.LogFieldRun, runID)
}

// WithStep returns an entry scoped to the given group (optional) and step
// name, for use around a single step's dispatch/spawn/completion.
func (xl *StcLog) WithStep(group, step string) *logrus.Entry {
	fields := logrus.Fields{common.LogFieldStep: step}
	if group != "" {
		fields[common.LogFieldGroup] = group
	}
	return xl.Logger.WithFields(fields)
}

// InfoStep logs an Info-level message scoped to a step.
func (xl *StcLog) InfoStep(group, step, message string) {
	xl.WithStep(group, step).Info(message)
}

// ErrorStep logs an Error-level message scoped to a step, attaching err.
func (xl *StcLog) ErrorStep(group, step string, err error, message string) {
	entry := xl.WithStep(group, step)
	if err != nil {
		entry = entry.WithField("error", err)
	}
	entry.Error(message)
}
