package wallet

import (
	"context"
	"sync"
)

// AccountStore holds the signed-in account set. Only App writes to it, and
// only after a successful round trip.
type AccountStore interface {
	Load(ctx context.Context) ([]Account, error)
	Replace(ctx context.Context, accounts []Account) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	accounts []Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Account{}, s.accounts...), nil
}

func (s *MemoryStore) Replace(_ context.Context, accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append([]Account(nil), accounts...)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = nil
	return nil
}
