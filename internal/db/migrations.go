package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) NOT NULL,
		name VARCHAR(128) NOT NULL DEFAULT '',
		eth_address VARCHAR(42) NOT NULL,
		account_address VARCHAR(42) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email ON users (email);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_eth_address ON users (eth_address);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_account_address ON users (account_address);`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		contract_index BIGINT NOT NULL,
		agent_address VARCHAR(42) NOT NULL,
		seller_address VARCHAR(42) NOT NULL,
		buyer_address VARCHAR(42) NOT NULL,
		building_type VARCHAR(16) NOT NULL,
		building_name VARCHAR(128) NOT NULL DEFAULT '',
		building_address VARCHAR(255) NOT NULL DEFAULT '',
		photo_path VARCHAR(255) NOT NULL DEFAULT '',
		contract_date DATE NOT NULL,
		contract_type SMALLINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_contract_index ON contracts (contract_index);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_agent_address ON contracts (agent_address);`,
	`CREATE TABLE IF NOT EXISTS registration_journal (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		agent_address VARCHAR(42) NOT NULL,
		start_block BIGINT NOT NULL,
		tx_hash VARCHAR(66) NOT NULL DEFAULT '',
		draft JSONB NOT NULL,
		state VARCHAR(16) NOT NULL DEFAULT 'SUBMITTED',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_registration_journal_state ON registration_journal (state);`,
	`CREATE INDEX IF NOT EXISTS idx_registration_journal_agent ON registration_journal (agent_address);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
