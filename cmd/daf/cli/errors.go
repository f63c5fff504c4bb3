package cli

// SilentError wraps an error whose message was already shown to the user.
// main.go skips printing it and only maps the exit code.
type SilentError struct {
	err error
}

// NewSilentError wraps err so main.go does not print it again.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}
