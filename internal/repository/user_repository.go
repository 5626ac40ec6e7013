package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, email, name, eth_address, account_address, created_at
		FROM users
		WHERE lower(email) = lower(?)
		LIMIT 1
	`, strings.TrimSpace(email)).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

func (r *UserRepository) GetByEthAddress(ctx context.Context, ethAddress string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, email, name, eth_address, account_address, created_at
		FROM users
		WHERE lower(eth_address) = lower(?)
		LIMIT 1
	`, strings.TrimSpace(ethAddress)).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

// SearchEmails backs the autocomplete box on the registration form.
func (r *UserRepository) SearchEmails(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	var emails []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT email
		FROM users
		WHERE email ILIKE ?
		ORDER BY email ASC
		LIMIT ?
	`, likePrefix(query), limit).Scan(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

func likePrefix(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(query))
	return escaped + "%"
}
