package checkpg

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCheckNotFound is returned when a check request does not exist
	ErrCheckNotFound = errors.New("check not found")

	// ErrPolicyNotFound is returned when a policy or policy version does not exist
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEngagementNotFound is returned when an engagement letter does not exist
	ErrEngagementNotFound = errors.New("engagement letter not found")

	// ErrExtractionFailed is returned when a document cannot be converted to text
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrClientNotStarted is returned when calling methods before Start()
	ErrClientNotStarted = errors.New("client not started")

	// ErrClientAlreadyStarted is returned when Start() is called twice
	ErrClientAlreadyStarted = errors.New("client already started")
)

// CheckError represents an error with additional check context
type CheckError struct {
	Op      string // Operation that failed
	Err     error  // Underlying error
	CheckID string // Check ID if applicable
}

// Error implements the error interface
func (e *CheckError) Error() string {
	if e.CheckID != "" {
		return fmt.Sprintf("%s (check=%s): %v", e.Op, e.CheckID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCheckError creates a new CheckError
func NewCheckError(op string, err error) *CheckError {
	return &CheckError{Op: op, Err: err}
}

// NewCheckErrorWithID creates a new CheckError with a check ID
func NewCheckErrorWithID(op, checkID string, err error) *CheckError {
	return &CheckError{Op: op, Err: err, CheckID: checkID}
}
