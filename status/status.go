// Package status defines the lifecycle states of a step or group and the
// terminal/non-terminal distinction the coordinator's dispatch loop and
// skip-propagation rules are built on.
package status

import "fmt"

// Status is the execution state of a step or group. Every step begins
// Waiting; it ends in exactly one of the terminal states.
type Status int

const (
	// Waiting means the step has not yet become dispatchable.
	Waiting Status = iota
	// InProgress means the step's command is currently running.
	InProgress
	// Succeeded means the step's command exited zero.
	Succeeded
	// Failed means the step's command exited nonzero or could not be
	// spawned.
	Failed
	// Skipped means the step was never run: a prerequisite failed, it
	// fell outside an active subgraph on a range-run, or the run aborted.
	Skipped
)

// String renders the status the way it appears in status-record lines and
// terminal listener output.
func (s Status) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case InProgress:
		return "IN_PROGRESS"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	case Skipped:
		return "SKIPPED"
	default:
		return fmt.Sprintf("UNKNOWN_STATUS(%d)", int(s))
	}
}

// IsTerminal reports whether s is one of Succeeded, Failed, or Skipped.
func (s Status) IsTerminal() bool {
	switch s {
	case Succeeded, Failed, Skipped:
		return true
	default:
		return false
	}
}

// MarshalJSON renders the status as its string name, so status-record
// lines stay human-readable and greppable.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses a status-record line's status field back from its
// string name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		name = string(data[1 : len(data)-1])
	} else {
		name = string(data)
	}
	switch name {
	case "WAITING":
		*s = Waiting
	case "IN_PROGRESS":
		*s = InProgress
	case "SUCCEEDED":
		*s = Succeeded
	case "FAILED":
		*s = Failed
	case "SKIPPED":
		*s = Skipped
	default:
		return fmt.Errorf("status: unknown status name %q", name)
	}
	return nil
}

// Worst returns the higher-precedence status among a and b, in the order
// FAILED > SKIPPED > SUCCEEDED, used to derive a group's status from its
// children.
func Worst(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case Failed:
			return 3
		case Skipped:
			return 2
		case Succeeded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
