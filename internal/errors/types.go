package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies how far an error propagates through a batch.
type Severity int

const (
	// SeverityNone is reported for a nil error.
	SeverityNone Severity = iota
	// SeverityRecoverable errors become an observation for the agent and the
	// episode keeps running.
	SeverityRecoverable
	// SeverityTrial errors end one trial with reward 0; sibling trials continue.
	SeverityTrial
	// SeverityFatal errors abort the whole batch.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityTrial:
		return "trial"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Recoverable is implemented by errors that are reported back to the agent
// instead of failing the trial. Tool failures and unknown actions qualify.
type Recoverable interface {
	error
	Recoverable() bool
}

// RewardError reports that the ground truth of a task could not be replayed
// or fingerprinted. The trial is recorded with reward 0.
type RewardError struct {
	TaskID string
	Stage  string // load, replay or hash
	Action string // ground-truth action being replayed, if any
	Err    error
}

func (e *RewardError) Error() string {
	var sb strings.Builder
	sb.WriteString("reward")
	if e.TaskID != "" {
		fmt.Fprintf(&sb, " for task %s", e.TaskID)
	}
	if e.Stage != "" {
		fmt.Fprintf(&sb, " failed at %s", e.Stage)
	}
	if e.Action != "" {
		fmt.Fprintf(&sb, " (action %s)", e.Action)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *RewardError) Unwrap() error {
	return e.Err
}

// CheckpointError reports a failure to read or persist the checkpoint file.
type CheckpointError struct {
	Path string
	Op   string // read, decode, encode or write
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// PanicError carries a recovered panic value and the stack of the goroutine
// that panicked.
type PanicError struct {
	Name  string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// NewRewardError wraps err with the task and stage it failed in.
func NewRewardError(taskID, stage string, err error) *RewardError {
	return &RewardError{TaskID: taskID, Stage: stage, Err: err}
}

// NewCheckpointError wraps err with the checkpoint operation that failed.
func NewCheckpointError(op, path string, err error) *CheckpointError {
	return &CheckpointError{Op: op, Path: path, Err: err}
}

// IsRecoverable reports whether err only needs to be surfaced to the agent.
func IsRecoverable(err error) bool {
	var rec Recoverable
	return errors.As(err, &rec) && rec.Recoverable()
}

// IsFatal reports whether err must abort the batch.
func IsFatal(err error) bool {
	var cpErr *CheckpointError
	return errors.As(err, &cpErr)
}

// SeverityOf classifies err. Fatal wins over everything else, and a reward
// failure stays a trial failure even when it wraps a recoverable tool error.
// Anything unclassified fails its trial.
func SeverityOf(err error) Severity {
	var rewardErr *RewardError
	switch {
	case err == nil:
		return SeverityNone
	case IsFatal(err):
		return SeverityFatal
	case errors.As(err, &rewardErr):
		return SeverityTrial
	case IsRecoverable(err):
		return SeverityRecoverable
	default:
		return SeverityTrial
	}
}

// Traceback renders err for a failed trial row. Panics keep their stack;
// other errors list every message in the wrap chain, outermost first.
func Traceback(err error) string {
	if err == nil {
		return ""
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) && panicErr.Stack != "" {
		return fmt.Sprintf("%s\n\n%s", err.Error(), panicErr.Stack)
	}
	var lines []string
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		lines = append(lines, fmt.Sprintf("%T: %s", cur, cur.Error()))
	}
	return strings.Join(lines, "\n")
}
