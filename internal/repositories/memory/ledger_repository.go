package memory

import (
	"context"
	"sync"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
)

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

// LedgerRepository keeps entries and balances in process memory. A single mutex
// makes Commit atomic.
type LedgerRepository struct {
	mu       sync.RWMutex
	balances map[string]models.UserBalance
	entries  map[string][]models.LedgerEntry
	byKey    map[string]int
	ids      map[string]struct{}
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		balances: make(map[string]models.UserBalance),
		entries:  make(map[string][]models.LedgerEntry),
		byKey:    make(map[string]int),
		ids:      make(map[string]struct{}),
	}
}

func (r *LedgerRepository) GetBalance(_ context.Context, userID string) (*models.UserBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &b, nil
}

func (r *LedgerRepository) FindByIdempotencyKey(_ context.Context, userID, key string) (*models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byKey[userID+"\x00"+key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	e := cloneEntry(&r.entries[userID][idx])
	return &e, nil
}

func (r *LedgerRepository) Commit(_ context.Context, balance *models.UserBalance, entry *models.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.balances[balance.UserID]
	switch {
	case !ok && balance.Version != 0:
		return repositories.ErrVersionConflict
	case ok && stored.Version != balance.Version:
		return repositories.ErrVersionConflict
	}
	if _, dup := r.ids[entry.ID]; dup {
		return repositories.ErrDuplicateKey
	}
	if entry.IdempotencyKey != nil {
		if _, dup := r.byKey[entry.UserID+"\x00"+*entry.IdempotencyKey]; dup {
			return repositories.ErrDuplicateKey
		}
	}

	next := *balance
	next.Version++
	r.balances[balance.UserID] = next
	r.entries[entry.UserID] = append(r.entries[entry.UserID], cloneEntry(entry))
	r.ids[entry.ID] = struct{}{}
	if entry.IdempotencyKey != nil {
		r.byKey[entry.UserID+"\x00"+*entry.IdempotencyKey] = len(r.entries[entry.UserID]) - 1
	}
	balance.Version = next.Version
	return nil
}

func (r *LedgerRepository) FindByUserID(_ context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.entries[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.LedgerEntry, 0, len(all))
	for i := range all {
		e := cloneEntry(&all[i])
		out = append(out, &e)
	}
	return out, nil
}

func (r *LedgerRepository) FindBySessionID(_ context.Context, sessionID string) ([]*models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.LedgerEntry{}
	for _, list := range r.entries {
		for i := range list {
			if list[i].SessionID != nil && *list[i].SessionID == sessionID {
				e := cloneEntry(&list[i])
				out = append(out, &e)
			}
		}
	}
	return out, nil
}

func cloneEntry(e *models.LedgerEntry) models.LedgerEntry {
	c := *e
	if e.SessionID != nil {
		s := *e.SessionID
		c.SessionID = &s
	}
	if e.IdempotencyKey != nil {
		k := *e.IdempotencyKey
		c.IdempotencyKey = &k
	}
	return c
}
