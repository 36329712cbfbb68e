package cipd

// AuthError reports an ensure that failed because the CIPD client holds no
// valid credentials. Output is the captured combined output of the failed
// ensure invocation.
type AuthError struct {
	Output string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return "cipd authentication required: " + e.Err.Error()
}

// Unwrap exposes the underlying invocation error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError reports any other package-ensure failure, with captured output.
type FetchError struct {
	Output string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return "cipd ensure failed: " + e.Err.Error()
}

// Unwrap exposes the underlying invocation error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
