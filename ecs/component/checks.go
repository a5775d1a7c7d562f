package component

import "fmt"

// violation reports a broken precondition. Debug builds (-tags navdebug)
// halt on the spot; release builds return the error and leave state as is.
func violation(err error, format string, args ...any) error {
	wrapped := fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
	if haltOnViolation {
		panic(wrapped)
	}
	return wrapped
}
