// Package session tracks per-user conversation state. Each user has at
// most one active flow; updates to a session are serialized per user.
package session

// Flow names the multi-step conversation a user is currently in.
type Flow string

const (
	// FlowNone indicates there is no active conversation with the user.
	FlowNone Flow = "none"

	FlowRegistration Flow = "registration"
	FlowWithdrawal   Flow = "withdrawal"

	FlowRejectPayment    Flow = "admin_reject_payment"
	FlowRejectWithdrawal Flow = "admin_reject_withdrawal"
	FlowMessageUser      Flow = "admin_message_user"
	FlowSearch           Flow = "admin_search"
	FlowBroadcast        Flow = "admin_broadcast"
)

// Registration steps, in order.
const (
	StepName = iota
	StepContact
	StepJUID
	StepStream
)

// Withdrawal steps, in order. The details steps collect a phone number
// or a bank account depending on the chosen method.
const (
	StepMethod = iota
	StepAmount
	StepPhone
	StepAccountNumber
	StepAccountName
)

// RegistrationDraft accumulates answers across the registration flow.
type RegistrationDraft struct {
	FullName   string
	Contact    string
	JUID       string
	ReferrerID int64
}

// WithdrawalDraft accumulates answers across the withdrawal flow.
type WithdrawalDraft struct {
	Amount        int64
	Method        string
	Phone         string
	AccountNumber string
	AccountName   string
}

// Session is one user's conversation state.
type Session struct {
	Flow Flow
	Step int

	Registration RegistrationDraft
	Withdrawal   WithdrawalDraft

	// TargetID carries the subject of an admin flow: the payment or
	// withdrawal being rejected, or the user being messaged.
	TargetID string
}

// Manager stores and mutates sessions keyed by telegram user id.
type Manager interface {
	// Get returns a copy of the user's session, or an idle one.
	Get(userID int64) Session
	// Begin replaces the user's session with a fresh one in the given flow.
	Begin(userID int64, flow Flow)
	// Mutate applies fn to the user's session under the per-user lock.
	// A session is created if none exists.
	Mutate(userID int64, fn func(*Session))
	// InFlow reports whether the user has an active conversation.
	InFlow(userID int64) bool
	// Clear drops the user's session entirely.
	Clear(userID int64)
}
