package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/google/uuid"
)

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository keeps users in process memory.
type UserRepository struct {
	mu       sync.RWMutex
	byID     map[string]models.User
	byWallet map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:     make(map[string]models.User),
		byWallet: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	if _, ok := r.byID[user.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	if _, ok := r.byWallet[user.WalletAddress]; ok {
		return repositories.ErrDuplicateKey
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.byID[user.ID] = *user
	r.byWallet[user.WalletAddress] = user.ID
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) FindByWalletAddress(_ context.Context, walletAddress string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byWallet[strings.ToLower(walletAddress)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}
