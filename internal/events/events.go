package events

import "context"

// Event types published on the wallet stream.
const (
	EventDepositDetected     = "deposit_detected"
	EventDepositConfirmed    = "deposit_confirmed"
	EventDepositCredited     = "deposit_credited"
	EventSweepCompleted      = "sweep_completed"
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalApproved  = "withdrawal_approved"
	EventWithdrawalSent      = "withdrawal_sent"
	EventWithdrawalFailed    = "withdrawal_failed"
	EventWithdrawalRejected  = "withdrawal_rejected"
)

// StreamWallet is the pubsub channel bridging the scanner process and the
// API's websocket clients.
const StreamWallet = "events:wallet"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
