package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/model"
)

// ErrDuplicateContractIndex reports that a record for the contract index
// already exists. Expected under confirmation redelivery; callers treat it
// as success-equivalent.
var ErrDuplicateContractIndex = errors.New("contract index already registered")

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create inserts the finalized contract record. The unique index on
// contract_index makes the write idempotent: a conflicting insert returns
// ErrDuplicateContractIndex instead of a second record.
func (r *ContractRepository) Create(ctx context.Context, contract model.Contract) (*model.Contract, error) {
	var saved model.Contract
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO contracts (
			contract_index,
			agent_address,
			seller_address,
			buyer_address,
			building_type,
			building_name,
			building_address,
			photo_path,
			contract_date,
			contract_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_index) DO NOTHING
		RETURNING
			id,
			contract_index,
			agent_address,
			seller_address,
			buyer_address,
			building_type,
			building_name,
			building_address,
			photo_path,
			contract_date,
			contract_type,
			created_at
	`,
		contract.ContractIndex,
		contract.AgentAddress,
		contract.SellerAddress,
		contract.BuyerAddress,
		contract.BuildingType,
		contract.BuildingName,
		contract.BuildingAddress,
		contract.PhotoPath,
		contract.ContractDate,
		contract.ContractType,
	).Scan(&saved).Error
	if err != nil {
		return nil, err
	}
	if saved.ID == uuid.Nil {
		return nil, ErrDuplicateContractIndex
	}
	return &saved, nil
}

func (r *ContractRepository) GetByIndex(ctx context.Context, contractIndex int64) (*model.Contract, error) {
	var contract model.Contract
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			contract_index,
			agent_address,
			seller_address,
			buyer_address,
			building_type,
			building_name,
			building_address,
			photo_path,
			contract_date,
			contract_type,
			created_at
		FROM contracts
		WHERE contract_index = ?
		LIMIT 1
	`, contractIndex).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &contract, nil
}

func (r *ContractRepository) ListByAgent(ctx context.Context, agentAddress string) ([]model.Contract, error) {
	var contracts []model.Contract
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			contract_index,
			agent_address,
			seller_address,
			buyer_address,
			building_type,
			building_name,
			building_address,
			photo_path,
			contract_date,
			contract_type,
			created_at
		FROM contracts
		WHERE lower(agent_address) = lower(?)
		ORDER BY contract_index ASC
	`, agentAddress).Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *ContractRepository) ExistsByIndex(ctx context.Context, contractIndex int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(1) FROM contracts WHERE contract_index = ?
	`, contractIndex).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
