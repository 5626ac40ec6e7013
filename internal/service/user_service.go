package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/blockon/contracts-service/internal/model"
)

type UserService struct {
	users IdentityRegistry
}

func NewUserService(users IdentityRegistry) *UserService {
	return &UserService{users: users}
}

// ResolveAccountAddress maps an external identifier (email or wallet
// address) to the ledger account address registered for it.
func (s *UserService) ResolveAccountAddress(ctx context.Context, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByEthAddress(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identifier)
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) SearchEmails(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	return s.users.SearchEmails(ctx, query, 10)
}
