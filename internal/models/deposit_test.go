package models

import "testing"

func TestIsValidDepositTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{DepositStatusPending, DepositStatusConfirming, true},
		{DepositStatusConfirming, DepositStatusConfirmed, true},
		{DepositStatusConfirmed, DepositStatusCredited, true},
		{DepositStatusCredited, DepositStatusSweepPending, true},
		{DepositStatusSweepPending, DepositStatusSwept, true},

		// A deposit with enough confirmations on first sighting can skip confirming
		{DepositStatusPending, DepositStatusConfirmed, true},

		// Sweep retry and failure branches
		{DepositStatusSweepPending, DepositStatusCredited, true},
		{DepositStatusCredited, DepositStatusSweepFailed, true},
		{DepositStatusSweepPending, DepositStatusSweepFailed, true},

		// Invalid transitions
		{DepositStatusPending, DepositStatusCredited, false},
		{DepositStatusPending, DepositStatusSwept, false},
		{DepositStatusConfirming, DepositStatusCredited, false},
		{DepositStatusConfirmed, DepositStatusSwept, false},
		{DepositStatusSwept, DepositStatusCredited, false},
		{DepositStatusSweepFailed, DepositStatusCredited, false},
		{DepositStatusSweepFailed, DepositStatusSweepPending, false},
		{DepositStatusCredited, DepositStatusConfirmed, false},
		{"nonexistent", DepositStatusPending, false},
		{DepositStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidDepositTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidDepositTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestDepositTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{DepositStatusSwept, DepositStatusSweepFailed}
	for _, status := range terminal {
		transitions := ValidDepositTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestAllDepositStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		DepositStatusPending, DepositStatusConfirming, DepositStatusConfirmed,
		DepositStatusCredited, DepositStatusSweepPending, DepositStatusSwept,
		DepositStatusSweepFailed,
	}

	for _, status := range allStatuses {
		if _, ok := ValidDepositTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidDepositTransitions map", status)
		}
	}
}
