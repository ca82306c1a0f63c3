package launcher

import "fmt"

// Exit codes reported when the launcher itself fails. A child's own exit
// code is passed through unchanged.
const (
	ExitPanic           = 101
	ExitBundleError     = 102
	ExitExtractionError = 103
	ExitExecutionError  = 104
	ExitInvalidArgs     = 105
	ExitIOError         = 106
)

// Error carries the exit code for a launcher failure.
type Error struct {
	Code int
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func failure(code int, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}
