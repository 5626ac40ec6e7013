package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/model"
)

type JournalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) Create(ctx context.Context, entry model.RegistrationJournal) (uuid.UUID, error) {
	draft, err := json.Marshal(entry.Draft)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal draft: %w", err)
	}

	var id uuid.UUID
	err = r.db.WithContext(ctx).Raw(`
		INSERT INTO registration_journal (agent_address, start_block, tx_hash, draft, state)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`,
		entry.AgentAddress,
		entry.StartBlock,
		entry.TxHash,
		draft,
		model.RegistrationStateSubmitted,
	).Scan(&id).Error
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JournalRepository) SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE registration_journal
		SET tx_hash = ?, updated_at = NOW()
		WHERE id = ?
	`, txHash, id).Error
}

func (r *JournalRepository) SetState(ctx context.Context, id uuid.UUID, state model.RegistrationState) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE registration_journal
		SET state = ?, updated_at = NOW()
		WHERE id = ?
	`, state, id).Error
}

// ListStuck returns SUBMITTED entries older than the given age. These are
// registrations whose confirmation was never consumed: the contract may
// exist on-chain without a matching database record.
func (r *JournalRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]model.RegistrationJournal, error) {
	var rows []struct {
		ID           uuid.UUID
		AgentAddress string
		StartBlock   uint64
		TxHash       string
		Draft        []byte
		State        model.RegistrationState
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, agent_address, start_block, tx_hash, draft, state, created_at, updated_at
		FROM registration_journal
		WHERE state = ? AND created_at < NOW() - (? * INTERVAL '1 second')
		ORDER BY created_at ASC
	`, model.RegistrationStateSubmitted, int64(olderThan.Seconds())).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]model.RegistrationJournal, 0, len(rows))
	for _, row := range rows {
		var draft model.ContractDraft
		if err := json.Unmarshal(row.Draft, &draft); err != nil {
			return nil, fmt.Errorf("unmarshal draft %s: %w", row.ID, err)
		}
		entries = append(entries, model.RegistrationJournal{
			ID:           row.ID,
			AgentAddress: row.AgentAddress,
			StartBlock:   row.StartBlock,
			TxHash:       row.TxHash,
			Draft:        draft,
			State:        row.State,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
	}
	return entries, nil
}
