package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository handles Postgres operations for User
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

// FindByID finds a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// FindByWalletAddress finds a user by wallet address
func (r *UserRepository) FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "wallet_address = ?", strings.ToLower(walletAddress)).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}
