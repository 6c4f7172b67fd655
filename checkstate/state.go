// Package checkstate provides the state machine definition for compliance
// check requests.
//
// A check request represents one engagement letter queued for analysis
// against one policy version. Each request progresses through the state
// machine until reaching a terminal state.
//
// State machine:
//
//	pending -> running      (worker claims request)
//	running -> completed    (analysis finished, result published)
//	running -> pending      (transient failure, released for redelivery)
//	running -> failed       (permanent failure)
//	running -> dead         (attempts exhausted)
//	pending -> dead         (attempts exhausted before reclaim)
//	* -> cancelled          (user cancellation)
//
// Terminal states (completed, failed, cancelled, dead) cannot transition
// further.
package checkstate

import (
	"database/sql/driver"
	"fmt"
)

// CheckState represents the current state of a check request.
type CheckState string

const (
	// CheckStatePending indicates the request is queued and waiting for a
	// worker. This is the initial state and the state a released request
	// returns to for redelivery.
	CheckStatePending CheckState = "pending"

	// CheckStateRunning indicates a worker has claimed the request and the
	// analysis is in flight.
	CheckStateRunning CheckState = "running"

	// CheckStateCompleted indicates the analysis finished and the result was
	// published.
	CheckStateCompleted CheckState = "completed"

	// CheckStateFailed indicates the request failed permanently.
	// The error_message field will be populated.
	CheckStateFailed CheckState = "failed"

	// CheckStateCancelled indicates the request was cancelled before
	// completion. Cancelled runs leave no result behind.
	CheckStateCancelled CheckState = "cancelled"

	// CheckStateDead indicates the request exhausted its delivery attempts
	// and was dead-lettered. Dead requests are kept for inspection.
	CheckStateDead CheckState = "dead"
)

// AllStates returns all possible check states.
func AllStates() []CheckState {
	return []CheckState{
		CheckStatePending,
		CheckStateRunning,
		CheckStateCompleted,
		CheckStateFailed,
		CheckStateCancelled,
		CheckStateDead,
	}
}

// TerminalStates returns all terminal (final) states.
func TerminalStates() []CheckState {
	return []CheckState{
		CheckStateCompleted,
		CheckStateFailed,
		CheckStateCancelled,
		CheckStateDead,
	}
}

// IsValid returns true if the state is a valid CheckState value.
func (s CheckState) IsValid() bool {
	switch s {
	case CheckStatePending, CheckStateRunning, CheckStateCompleted,
		CheckStateFailed, CheckStateCancelled, CheckStateDead:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the state is a terminal (final) state.
// Terminal states cannot transition to any other state.
func (s CheckState) IsTerminal() bool {
	switch s {
	case CheckStateCompleted, CheckStateFailed, CheckStateCancelled, CheckStateDead:
		return true
	default:
		return false
	}
}

// IsWorkable returns true if the state can be picked up by workers.
func (s CheckState) IsWorkable() bool {
	return s == CheckStatePending
}

// CanTransitionTo returns true if a transition from this state to the
// target state is valid.
func (s CheckState) CanTransitionTo(target CheckState) bool {
	// Terminal states cannot transition
	if s.IsTerminal() {
		return false
	}

	// Same state is not a valid transition
	if s == target {
		return false
	}

	// Any live state can transition to terminal states
	if target.IsTerminal() {
		return true
	}

	switch s {
	case CheckStatePending:
		return target == CheckStateRunning
	case CheckStateRunning:
		// Released back to the queue for redelivery.
		return target == CheckStatePending
	}

	return false
}

// String returns the string representation of the state.
func (s CheckState) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s CheckState) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *CheckState) Scan(src any) error {
	switch v := src.(type) {
	case string:
		state := CheckState(v)
		if !state.IsValid() {
			return fmt.Errorf("checkstate: invalid state %q", v)
		}
		*s = state
		return nil
	case []byte:
		state := CheckState(v)
		if !state.IsValid() {
			return fmt.Errorf("checkstate: invalid state %q", v)
		}
		*s = state
		return nil
	default:
		return fmt.Errorf("checkstate: cannot scan type %T into CheckState", src)
	}
}
