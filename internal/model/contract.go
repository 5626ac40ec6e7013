package model

import (
	"time"

	"github.com/google/uuid"
)

type ContractType int16

const (
	ContractTypeMonthlyRent  ContractType = 1
	ContractTypeDepositLease ContractType = 2
	ContractTypeSale         ContractType = 3
)

func (t ContractType) Valid() bool {
	return t >= ContractTypeMonthlyRent && t <= ContractTypeSale
}

func (t ContractType) Label() string {
	switch t {
	case ContractTypeMonthlyRent:
		return "Monthly rent"
	case ContractTypeDepositLease:
		return "Deposit lease"
	case ContractTypeSale:
		return "Sale"
	default:
		return "Unknown"
	}
}

type BuildingType string

const (
	BuildingTypeHouse      BuildingType = "HOUSE"
	BuildingTypeApartment  BuildingType = "APARTMENT"
	BuildingTypeCommercial BuildingType = "COMMERCIAL"
	BuildingTypeOfficetel  BuildingType = "OFFICETEL"
)

func (t BuildingType) Valid() bool {
	switch t {
	case BuildingTypeHouse, BuildingTypeApartment, BuildingTypeCommercial, BuildingTypeOfficetel:
		return true
	}
	return false
}

// ContractDraft holds everything known about a contract before the ledger
// has assigned it an index. The index stays unset until a confirmation
// event has been consumed; no durable write happens before that.
type ContractDraft struct {
	AgentAddress    string       `json:"agent_address"`
	SellerAddress   string       `json:"seller_address"`
	BuyerAddress    string       `json:"buyer_address"`
	BuildingType    BuildingType `json:"building_type"`
	BuildingName    string       `json:"building_name"`
	BuildingAddress string       `json:"building_address"`
	PhotoPath       string       `json:"photo_path"`
	ContractDate    time.Time    `json:"contract_date"`
	ContractType    ContractType `json:"contract_type"`
}

// Contract is the durable record: a draft plus the ledger-assigned index.
type Contract struct {
	ID              uuid.UUID
	ContractIndex   int64
	AgentAddress    string
	SellerAddress   string
	BuyerAddress    string
	BuildingType    BuildingType
	BuildingName    string
	BuildingAddress string
	PhotoPath       string
	ContractDate    time.Time
	ContractType    ContractType
	CreatedAt       time.Time
}

// ConfirmationEvent is the on-chain fact correlating a creation call with
// its assigned contract index. Delivered at-least-once, in block order.
type ConfirmationEvent struct {
	ContractIndex int64
	BlockNumber   uint64
}
