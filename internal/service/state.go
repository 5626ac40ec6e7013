package service

import "fmt"

// Registration pipeline states. The machine only ever moves forward; a
// failed attempt terminates in StateFailed and the caller re-initiates.
type State string

const (
	StateIdle                 State = "IDLE"
	StateResolvingIdentities  State = "RESOLVING_IDENTITIES"
	StateSubmitting           State = "SUBMITTING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StatePersisting           State = "PERSISTING"
	StateCompleted            State = "COMPLETED"
	StateFailed               State = "FAILED"
)

type Event string

const (
	EventSubmitRequested      Event = "SUBMIT_REQUESTED"
	EventIdentitiesResolved   Event = "IDENTITIES_RESOLVED"
	EventTransactionAccepted  Event = "TRANSACTION_ACCEPTED"
	EventConfirmationReceived Event = "CONFIRMATION_RECEIVED"
	EventRecordPersisted      Event = "RECORD_PERSISTED"
	EventPipelineFailed       Event = "PIPELINE_FAILED"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSubmitRequested: StateResolvingIdentities,
	},
	StateResolvingIdentities: {
		EventIdentitiesResolved: StateSubmitting,
	},
	StateSubmitting: {
		EventTransactionAccepted: StateAwaitingConfirmation,
	},
	StateAwaitingConfirmation: {
		EventConfirmationReceived: StatePersisting,
	},
	StatePersisting: {
		EventRecordPersisted: StateCompleted,
	},
}

// Next is the pure transition function of the registration state machine.
// EventPipelineFailed is accepted from every non-terminal state.
func Next(current State, event Event) (State, error) {
	if current == StateCompleted || current == StateFailed {
		return current, fmt.Errorf("state %s is terminal", current)
	}
	if event == EventPipelineFailed {
		return StateFailed, nil
	}
	next, ok := transitions[current][event]
	if !ok {
		return current, fmt.Errorf("no transition from %s on %s", current, event)
	}
	return next, nil
}
