package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity-registry entry mapping human-facing identifiers
// (email, wallet address) to the ledger account address of the user's
// smart-contract account.
type User struct {
	ID             uuid.UUID
	Email          string
	Name           string
	EthAddress     string
	AccountAddress string
	CreatedAt      time.Time
}

type Principal struct {
	UserID     uuid.UUID
	Email      string
	EthAddress string
}
