package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"
)

var validate = validator.New()

// UserService is the user directory: it resolves wallet addresses to user ids
type UserService struct {
	userRepo     repositories.UserRepository
	autoRegister bool
	timeout      time.Duration
}

// NewUserService creates a new UserService
func NewUserService(userRepo repositories.UserRepository, autoRegister bool, timeout time.Duration) *UserService {
	return &UserService{
		userRepo:     userRepo,
		autoRegister: autoRegister,
		timeout:      timeout,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storageError("find user", err)
	}
	return user, nil
}

// GetUserByWalletAddress retrieves a user by wallet address
func (s *UserService) GetUserByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.FindByWalletAddress(ctx, walletAddress)
	if err != nil {
		return nil, storageError("find user by wallet", err)
	}
	return user, nil
}

// Register creates a user for a wallet address, or returns the existing one
func (s *UserService) Register(ctx context.Context, walletAddress string) (*models.User, error) {
	if err := validate.Var(walletAddress, "required,eth_addr"); err != nil {
		return nil, validationError("invalid wallet address %q", walletAddress)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := &models.User{WalletAddress: strings.ToLower(walletAddress)}
	err := s.userRepo.Create(ctx, user)
	if errors.Is(err, repositories.ErrDuplicateKey) {
		// Lost a registration race; the other writer's row is the user.
		existing, findErr := s.userRepo.FindByWalletAddress(ctx, walletAddress)
		if findErr != nil {
			return nil, storageError("register user", findErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, storageError("register user", err)
	}

	slog.Info("User registered", "userId", user.ID, "walletAddress", user.WalletAddress)
	return user, nil
}

// Resolve returns the user id for a request that names a user by id or wallet address.
// An explicit user id wins and must belong to a registered user. Unknown wallets are
// registered when register is set and auto registration is on; otherwise they are
// ErrNotFound.
func (s *UserService) Resolve(ctx context.Context, userID, walletAddress string, register bool) (string, error) {
	if userID != "" {
		user, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	if walletAddress == "" {
		return "", validationError("userId or walletAddress is required")
	}

	user, err := s.GetUserByWalletAddress(ctx, walletAddress)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, ErrNotFound) || !register || !s.autoRegister {
		return "", err
	}

	user, err = s.Register(ctx, walletAddress)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
