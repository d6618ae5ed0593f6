package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a previous Start is
	// still supervising.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrUnexpectedExit is recorded when the process exits with status 0
	// without being asked to.
	ErrUnexpectedExit = errors.New("process: exited unexpectedly")
)

// RecoverableError is implemented by errors that know whether a restart can
// help. Errors that do not implement it are treated as recoverable.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether err should lead to a restart.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// permanentError marks a failure a restart cannot fix, such as a missing
// binary.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string       { return e.err.Error() }
func (e *permanentError) Unwrap() error       { return e.err }
func (e *permanentError) IsRecoverable() bool { return false }
