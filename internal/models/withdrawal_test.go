package models

import "testing"

func TestIsValidWithdrawalTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{WithdrawalStatusPending, WithdrawalStatusApproved, true},
		{WithdrawalStatusApproved, WithdrawalStatusProcessing, true},
		{WithdrawalStatusProcessing, WithdrawalStatusSent, true},

		// Admin rejection: allowed before processing starts
		{WithdrawalStatusPending, WithdrawalStatusRejected, true},
		{WithdrawalStatusApproved, WithdrawalStatusRejected, true},

		// Chain failure, then operator resolution refunding the funds
		{WithdrawalStatusProcessing, WithdrawalStatusFailed, true},
		{WithdrawalStatusFailed, WithdrawalStatusRejected, true},

		// Invalid transitions
		{WithdrawalStatusPending, WithdrawalStatusProcessing, false},
		{WithdrawalStatusPending, WithdrawalStatusSent, false},
		{WithdrawalStatusProcessing, WithdrawalStatusRejected, false},
		{WithdrawalStatusSent, WithdrawalStatusFailed, false},
		{WithdrawalStatusFailed, WithdrawalStatusPending, false},
		{WithdrawalStatusFailed, WithdrawalStatusApproved, false},
		{WithdrawalStatusRejected, WithdrawalStatusApproved, false},
		{"nonexistent", WithdrawalStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidWithdrawalTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidWithdrawalTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestWithdrawalTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{WithdrawalStatusSent, WithdrawalStatusRejected}
	for _, status := range terminal {
		transitions := ValidWithdrawalTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestFailedWithdrawalCanBeRejectedForRefund(t *testing.T) {
	// A failed send leaves amount+fee earmarked. The only way those funds
	// come back is the admin reject path, so the transition must be open.
	if !IsValidWithdrawalTransition(WithdrawalStatusFailed, WithdrawalStatusRejected) {
		t.Fatal("failed -> rejected must be valid or earmarked funds can never be refunded")
	}
}
