package manipulator

// RenderError is returned by every failed render. Err wraps one of the
// media sentinels, so callers match it with errors.Is.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return "render " + e.Op + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func (e *RenderError) Cause() error {
	return e.Err
}
