package ledger

import (
	"fmt"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Trigger moves a record between states.
type Trigger string

const (
	// TriggerBegin creates the pending claim for a customer.
	TriggerBegin Trigger = "begin"
	// TriggerConfirm records a successfully created invoice.
	TriggerConfirm Trigger = "confirm"
	// TriggerFail records a failed emission attempt.
	TriggerFail Trigger = "fail"
	// TriggerRetry re-claims a failed record for a new run.
	TriggerRetry Trigger = "retry"
	// TriggerReclaim takes over a pending claim whose run went away.
	TriggerReclaim Trigger = "reclaim"
)

// TransitionError is returned for a trigger the current state does not
// permit.
type TransitionError struct {
	From    Status
	Trigger Trigger
	Err     error
}

func (e *TransitionError) Error() string {
	from := e.From
	if from == StatusNone {
		from = "absent"
	}
	return fmt.Sprintf("ledger: cannot %s a %s record: %v", e.Trigger, from, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func machine(from Status) *stateless.StateMachine {
	sm := stateless.NewStateMachine(from)

	sm.Configure(StatusNone).
		Permit(TriggerBegin, StatusPending)

	sm.Configure(StatusPending).
		Permit(TriggerConfirm, StatusCreated).
		Permit(TriggerFail, StatusFailed).
		PermitReentry(TriggerReclaim)

	sm.Configure(StatusFailed).
		Permit(TriggerRetry, StatusPending)

	// created is terminal
	sm.Configure(StatusCreated)

	return sm
}

// Next returns the state reached by firing t from the given state.
func Next(from Status, t Trigger) (Status, error) {
	sm := machine(from)
	if err := sm.Fire(t); err != nil {
		return from, &TransitionError{From: from, Trigger: t, Err: err}
	}
	return sm.MustState().(Status), nil
}

// Transition is a compare-and-set update of one record. A store applies it
// only while the record still has status From and is held by ExpectRunID.
type Transition struct {
	Trigger     Trigger
	From        Status
	To          Status
	ExpectRunID id.RunID

	RunID         id.RunID
	InvoiceNumber string
	InvoiceID     string
	Amount        types.Money
	Error         string
	At            time.Time
}

// Plan builds the transition that fires t on r for run.
func Plan(r *Record, t Trigger, run id.RunID, at time.Time) (Transition, error) {
	to, err := Next(r.Status, t)
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		Trigger:       t,
		From:          r.Status,
		To:            to,
		ExpectRunID:   r.RunID,
		RunID:         run,
		InvoiceNumber: r.InvoiceNumber,
		InvoiceID:     r.InvoiceID,
		Amount:        r.Amount,
		At:            at,
	}, nil
}

// Matches reports whether r is still in the state t was planned from.
func (t Transition) Matches(r *Record) bool {
	return r.Status == t.From && r.HeldBy(t.ExpectRunID)
}

// Apply writes t onto r. Callers check Matches first.
func (t Transition) Apply(r *Record) {
	r.Status = t.To
	r.RunID = t.RunID
	r.InvoiceNumber = t.InvoiceNumber
	r.InvoiceID = t.InvoiceID
	r.Amount = t.Amount
	r.Error = t.Error
	r.Touch(t.At)
}
