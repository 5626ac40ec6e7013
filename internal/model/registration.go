package model

import (
	"time"

	"github.com/google/uuid"
)

type RegistrationState string

const (
	RegistrationStateSubmitted RegistrationState = "SUBMITTED"
	RegistrationStateCompleted RegistrationState = "COMPLETED"
	RegistrationStateFailed    RegistrationState = "FAILED"
)

// RegistrationJournal records an in-flight registration attempt before the
// on-chain submission goes out. Entries stuck in SUBMITTED are picked up by
// the reconciliation sweep, which re-filters ledger events from StartBlock.
type RegistrationJournal struct {
	ID           uuid.UUID
	AgentAddress string
	StartBlock   uint64
	TxHash       string
	Draft        ContractDraft
	State        RegistrationState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
