package async

import (
	"runtime/debug"

	tauerrors "taubench/internal/errors"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		if name == "" {
			logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
			return
		}
		logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
	}
}

// Run calls fn on the current goroutine and converts a panic into a
// *errors.PanicError carrying the stack, so a single trial can fail without
// taking its worker down.
func Run(logger PanicLogger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if logger != nil {
				logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, stack)
			}
			err = &tauerrors.PanicError{Name: name, Value: r, Stack: stack}
		}
	}()
	return fn()
}
