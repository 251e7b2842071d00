package upload

import "fmt"

// ValidationError is a caller input defect detected before any remote call.
// No side effects exist when it is raised, so no compensation is needed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthorizationError is raised when the acting identity's role is not in the
// authorized-uploader set.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// PersistenceError wraps a failed metadata write. Remote assets are
// deliberately left in place when this occurs: the binaries are still needed
// for a retried metadata write, so the condition is surfaced to operators
// instead of auto-corrected.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("saving video metadata: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
