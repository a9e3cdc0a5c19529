// Package common holds small constants shared across stc's packages:
// structured-log field names, file modes, and the application name.
package common

import "io/fs"

const (
	AppName = "stc"
)

// Structured-logging field names, attached via logrus.Entry.WithField so
// that every log line carries the scenario/group/step it belongs to.
const (
	LogFieldApp      = "app"
	LogFieldRun      = "run_id"
	LogFieldScenario = "scenario"
	LogFieldGroup    = "group"
	LogFieldStep     = "step"
)

const (
	// FileMode0755 represents rwxr-xr-x, used for log and working directories.
	FileMode0755 fs.FileMode = 0755
	// FileMode0644 represents rw-r--r--, used for log and status-record files.
	FileMode0644 fs.FileMode = 0644
)
