package accounts

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Store persists accounts by id.
type Store interface {
	// Get returns the account or ErrAccountNotFound.
	Get(ctx context.Context, id string) (Account, error)

	// Put inserts or replaces the account.
	Put(ctx context.Context, account Account) error

	// Delete removes the account. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all accounts ordered by id.
	List(ctx context.Context) ([]Account, error)
}

// MemoryStore is a Store held in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryStore(accounts ...Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryStore) Put(ctx context.Context, account Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	slices.SortFunc(result, func(a, b Account) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}
