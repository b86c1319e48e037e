// Package bidaccepted coordinates everything that must happen after a
// homeowner accepts a bid: contract creation, payment (escrow) setup, and the
// award notification. Contract and payment live in independent domains, so
// the steps run through the command bus and the workflow waits on the
// payment confirmation event rather than blocking a thread.
package bidaccepted

import (
	"fmt"
	"time"

	"github.com/instabidslabs/instabids-cloud/internal/domain/contract"
	"github.com/instabidslabs/instabids-cloud/internal/domain/notification"
	"github.com/instabidslabs/instabids-cloud/internal/domain/payment"
	"github.com/instabidslabs/instabids-cloud/internal/event"
	"github.com/instabidslabs/instabids-cloud/internal/process"
)

const ProcessType = "bid_accepted"

// State keys. Everything the workflow accumulates lives under these.
const (
	keyBidID          = "bid_id"
	keyProjectID      = "project_id"
	keyContractorID   = "contractor_id"
	keyHomeownerID    = "homeowner_id"
	keyAmountCents    = "amount_cents"
	keyContractID     = "contract_id"
	keyPaymentSetupID = "payment_setup_id"
	keyPaymentDone    = "payment_confirmed"
	keyNotificationID = "notification_id"
)

// Definition implements process.Definition for the post-acceptance workflow.
type Definition struct {
	// WaitTimeout bounds how long an instance waits on payment confirmation
	// before the reaper fails it. Zero waits forever.
	WaitTimeout time.Duration
}

func New(waitTimeout time.Duration) *Definition {
	return &Definition{WaitTimeout: waitTimeout}
}

func (d *Definition) ProcessType() string { return ProcessType }

func (d *Definition) Timeout() time.Duration { return d.WaitTimeout }

// BusinessKey scopes one workflow occurrence to one accepted bid.
func (d *Definition) BusinessKey(evt event.IntegrationEvent) (string, bool) {
	payload, ok := evt.Payload.(event.BidAccepted)
	if !ok {
		return "", false
	}
	return payload.BidID, true
}

func (d *Definition) BuildInitialState(evt event.IntegrationEvent) (process.State, error) {
	payload, ok := evt.Payload.(event.BidAccepted)
	if !ok {
		return nil, fmt.Errorf("expected bid.accepted payload, got %T", evt.Payload)
	}
	return process.State{
		keyBidID:        payload.BidID,
		keyProjectID:    payload.ProjectID,
		keyContractorID: payload.ContractorID,
		keyHomeownerID:  payload.HomeownerID,
		keyAmountCents:  payload.AmountCents,
	}, nil
}

// IsRelevantEvent matches payment outcomes for this instance's contract.
func (d *Definition) IsRelevantEvent(state process.State, evt event.IntegrationEvent) bool {
	contractID := state.GetString(keyContractID)
	if contractID == "" {
		return false
	}
	switch payload := evt.Payload.(type) {
	case event.PaymentSetupCompleted:
		return payload.ContractID == contractID
	case event.PaymentSetupFailed:
		return payload.ContractID == contractID
	default:
		return false
	}
}

// UpdateStateFromEvent folds a payment outcome. Idempotent: a redelivered
// completion leaves the already-set flag unchanged. A payment failure is
// terminal and surfaces as an error so the engine fails the instance.
func (d *Definition) UpdateStateFromEvent(state process.State, evt event.IntegrationEvent) (process.State, error) {
	switch payload := evt.Payload.(type) {
	case event.PaymentSetupCompleted:
		if state.GetBool(keyPaymentDone) {
			return state, nil
		}
		next := state.Clone()
		next[keyPaymentDone] = true
		next[keyPaymentSetupID] = payload.PaymentSetupID
		return next, nil
	case event.PaymentSetupFailed:
		return state, fmt.Errorf("payment setup %s failed: %s", payload.PaymentSetupID, payload.Reason)
	default:
		return state, fmt.Errorf("irrelevant event %s folded into %s", evt.EventType, ProcessType)
	}
}

// UpdateStateFromCommandResult folds a successful command outcome. Idempotent
// for the same result: fields are only set when absent.
func (d *Definition) UpdateStateFromCommandResult(state process.State, command string, result any) (process.State, error) {
	switch command {
	case contract.CommandCreate:
		outcome, ok := result.(contract.CreateResult)
		if !ok {
			return state, fmt.Errorf("unexpected result %T for %s", result, command)
		}
		if state.GetString(keyContractID) != "" {
			return state, nil
		}
		next := state.Clone()
		next[keyContractID] = outcome.ContractID
		return next, nil

	case payment.CommandSetup:
		outcome, ok := result.(payment.SetupResult)
		if !ok {
			return state, fmt.Errorf("unexpected result %T for %s", result, command)
		}
		if state.GetString(keyPaymentSetupID) != "" && !outcome.Confirmed {
			return state, nil
		}
		next := state.Clone()
		next[keyPaymentSetupID] = outcome.PaymentSetupID
		if outcome.Confirmed {
			// Gateway confirmed synchronously; no need to wait for the event.
			next[keyPaymentDone] = true
		}
		return next, nil

	case notification.CommandSend:
		outcome, ok := result.(notification.SendResult)
		if !ok {
			return state, fmt.Errorf("unexpected result %T for %s", result, command)
		}
		if state.GetString(keyNotificationID) != "" {
			return state, nil
		}
		next := state.Clone()
		next[keyNotificationID] = outcome.NotificationID
		return next, nil

	default:
		return state, fmt.Errorf("unknown command %s", command)
	}
}

// DetermineNextAction derives the next step from state alone: contract, then
// payment setup, then wait for confirmation, then notify, then done.
func (d *Definition) DetermineNextAction(state process.State) process.Action {
	if state.GetString(keyContractID) == "" {
		amount, _ := stateAmount(state)
		return process.ActionCommand{
			Name: contract.CommandCreate,
			Payload: contract.CreateInput{
				BidID:        state.GetString(keyBidID),
				ProjectID:    state.GetString(keyProjectID),
				ContractorID: state.GetString(keyContractorID),
				HomeownerID:  state.GetString(keyHomeownerID),
				AmountCents:  amount,
			},
		}
	}

	if state.GetString(keyPaymentSetupID) == "" {
		amount, _ := stateAmount(state)
		return process.ActionCommand{
			Name: payment.CommandSetup,
			Payload: payment.SetupInput{
				ContractID:  state.GetString(keyContractID),
				PayerID:     state.GetString(keyHomeownerID),
				PayeeID:     state.GetString(keyContractorID),
				AmountCents: amount,
			},
		}
	}

	if !state.GetBool(keyPaymentDone) {
		return process.ActionWait{}
	}

	if state.GetString(keyNotificationID) == "" {
		return process.ActionCommand{
			Name: notification.CommandSend,
			Payload: notification.SendInput{
				RecipientID: state.GetString(keyContractorID),
				Template:    "bid_awarded",
				Subject:     "You won the project",
				Body:        "Contract " + state.GetString(keyContractID) + " is ready for signature.",
				DedupeKey:   "bid_awarded:" + state.GetString(keyBidID),
			},
		}
	}

	return process.ActionComplete{}
}

// stateAmount tolerates the float64 that a JSON round-trip turns integers into.
func stateAmount(state process.State) (int64, bool) {
	switch v := state[keyAmountCents].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
