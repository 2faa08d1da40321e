package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

type toolFailure struct{ msg string }

func (e *toolFailure) Error() string     { return e.msg }
func (e *toolFailure) Recoverable() bool { return true }

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityNone},
		{"recoverable", &toolFailure{msg: "seat taken"}, SeverityRecoverable},
		{"wrapped recoverable", fmt.Errorf("dispatch: %w", &toolFailure{msg: "x"}), SeverityRecoverable},
		{"reward", NewRewardError("t1", "replay", os.ErrInvalid), SeverityTrial},
		{"reward wrapping tool failure", NewRewardError("t1", "replay", &toolFailure{msg: "x"}), SeverityTrial},
		{"checkpoint", NewCheckpointError("write", "/tmp/cp.json", os.ErrPermission), SeverityFatal},
		{"wrapped checkpoint", fmt.Errorf("append: %w", NewCheckpointError("write", "cp.json", os.ErrPermission)), SeverityFatal},
		{"panic", &PanicError{Value: "boom"}, SeverityTrial},
		{"cancelled", context.Canceled, SeverityTrial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityOf(tt.err); got != tt.want {
				t.Fatalf("SeverityOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestRewardErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("trial 3: %w", &RewardError{TaskID: "7", Stage: "replay", Action: "cancel_reservation", Err: os.ErrNotExist})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	var rewardErr *RewardError
	if !errors.As(err, &rewardErr) {
		t.Fatalf("expected RewardError in chain")
	}
	msg := rewardErr.Error()
	for _, part := range []string{"task 7", "replay", "cancel_reservation"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
}

func TestTraceback(t *testing.T) {
	if Traceback(nil) != "" {
		t.Fatalf("expected empty traceback for nil")
	}

	chain := Traceback(fmt.Errorf("run episode: %w", NewRewardError("1", "hash", os.ErrClosed)))
	lines := strings.Split(chain, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 chain lines, got %d: %q", len(lines), chain)
	}
	if !strings.Contains(lines[1], "*errors.RewardError") {
		t.Fatalf("expected reward error type on second line, got %q", lines[1])
	}

	panicTrace := Traceback(&PanicError{Name: "trial", Value: "boom", Stack: "goroutine 7 [running]:"})
	if !strings.Contains(panicTrace, "panic in trial: boom") || !strings.Contains(panicTrace, "goroutine 7") {
		t.Fatalf("unexpected panic traceback %q", panicTrace)
	}
}
