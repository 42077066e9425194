package payments

import "context"

// Request carries everything the payment gateway needs for one charge.
// Amount is in minor currency units (paise for INR).
type Request struct {
	AmountMinor int64
	Currency    string
	Name        string
	Description string
	Email       string
	Contact     string
}

// Outcome is the terminal result of one gateway invocation. Exactly one
// Outcome is produced per Pay call that reaches the gateway; it is never
// followed by another value for the same invocation.
type Outcome struct {
	Succeeded bool
	PaymentID string // external payment identifier, set on success
	Reason    string // human-readable failure reason, set on failure
}

// Gateway drives an external payment flow to completion.
//
// Pay blocks until the gateway resolves and returns exactly one terminal
// Outcome. A non-nil error means the gateway itself never became available
// (load failure) and no outcome was produced; callers treat that the same
// as a payment failure but with a distinct user-facing message. Pay is
// never retried automatically.
type Gateway interface {
	Pay(ctx context.Context, req Request) (Outcome, error)
}
