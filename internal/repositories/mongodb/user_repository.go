package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Compile-time check to ensure UserRepository implements the interface
var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository handles MongoDB operations for User
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// Create inserts a new user. Wallet addresses are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	_, err := r.collection.InsertOne(ctx, user)
	return translateError(err)
}

// FindByID finds a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	filter := bson.M{"_id": id}
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// FindByWalletAddress finds a user by wallet address
func (r *UserRepository) FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	filter := bson.M{"walletAddress": strings.ToLower(walletAddress)}
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}
