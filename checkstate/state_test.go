package checkstate

import "testing"

func TestCheckState_IsValid(t *testing.T) {
	tests := []struct {
		state CheckState
		valid bool
	}{
		{CheckStatePending, true},
		{CheckStateRunning, true},
		{CheckStateCompleted, true},
		{CheckStateFailed, true},
		{CheckStateCancelled, true},
		{CheckStateDead, true},
		{CheckState("invalid"), false},
		{CheckState(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestCheckState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    CheckState
		terminal bool
	}{
		{CheckStatePending, false},
		{CheckStateRunning, false},
		{CheckStateCompleted, true},
		{CheckStateFailed, true},
		{CheckStateCancelled, true},
		{CheckStateDead, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestCheckState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  CheckState
		to    CheckState
		valid bool
	}{
		// Claim and completion
		{CheckStatePending, CheckStateRunning, true},
		{CheckStateRunning, CheckStateCompleted, true},
		{CheckStateRunning, CheckStateFailed, true},
		{CheckStateRunning, CheckStateCancelled, true},
		{CheckStateRunning, CheckStateDead, true},

		// Redelivery release
		{CheckStateRunning, CheckStatePending, true},

		// Cancellation and dead-lettering before claim
		{CheckStatePending, CheckStateCancelled, true},
		{CheckStatePending, CheckStateDead, true},

		// Invalid: same state
		{CheckStatePending, CheckStatePending, false},
		{CheckStateRunning, CheckStateRunning, false},

		// Invalid: terminal states cannot transition
		{CheckStateCompleted, CheckStatePending, false},
		{CheckStateFailed, CheckStateRunning, false},
		{CheckStateCancelled, CheckStatePending, false},
		{CheckStateDead, CheckStatePending, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestCheckState_IsWorkable(t *testing.T) {
	for _, state := range AllStates() {
		want := state == CheckStatePending
		if got := state.IsWorkable(); got != want {
			t.Errorf("IsWorkable(%s) = %v, want %v", state, got, want)
		}
	}
}
