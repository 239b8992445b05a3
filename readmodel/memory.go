package readmodel

import (
	"context"
	"sort"
	"sync"

	"example.com/backstage/services/ledger/models"
)

// MemoryAccountRepository is an in-memory AccountRepository for tests.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]models.Account
}

// NewMemoryAccountRepository creates an empty in-memory account repository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]models.Account)}
}

// Exists reports whether a row exists for the account.
func (r *MemoryAccountRepository) Exists(ctx context.Context, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.accounts[accountID]
	return ok, nil
}

// FindByID returns the account row, or nil when none exists.
func (r *MemoryAccountRepository) FindByID(ctx context.Context, accountID string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// Save upserts the account row.
func (r *MemoryAccountRepository) Save(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.AccountID] = *account
	return nil
}

// FindAll returns all accounts sorted by id.
func (r *MemoryAccountRepository) FindAll(ctx context.Context) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}
