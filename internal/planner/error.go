package planner

import "fmt"

// InputError reports a planner file that could not be used. It is never fatal:
// callers log it and continue with an empty path.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("planner file %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
