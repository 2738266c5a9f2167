package intent

import "fmt"

// ValidationError reports an intent that cannot be executed as given:
// outside the allow-list, or missing a required modifier. It is expected
// and non-fatal; executors turn it into a Result rather than failing.
type ValidationError struct {
	Intent Intent
	Msg    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Reason)
}

// Result converts the error into the structured executor output, echoing
// the offending intent back to the planner.
func (e *ValidationError) Result() Result {
	in := e.Intent.Clone()
	return Result{
		Error:  e.Msg,
		Code:   400,
		Reason: e.Reason,
		Intent: &in,
	}
}
