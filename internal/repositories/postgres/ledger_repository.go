package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"gorm.io/gorm"
)

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

// LedgerRepository handles Postgres operations for ledger entries and user balances
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetBalance finds the materialized balance of a user
func (r *LedgerRepository) GetBalance(ctx context.Context, userID string) (*models.UserBalance, error) {
	var balance models.UserBalance
	if err := r.db.WithContext(ctx).First(&balance, "user_id = ?", userID).Error; err != nil {
		return nil, translateError(err)
	}
	return &balance, nil
}

// FindByIdempotencyKey finds the entry a user already recorded under key
func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).First(&entry, "user_id = ? AND idempotency_key = ?", userID, key).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

// Commit writes the entry and the new balance in one transaction
func (r *LedgerRepository) Commit(ctx context.Context, balance *models.UserBalance, entry *models.LedgerEntry) error {
	expected := balance.Version
	next := *balance
	next.Version = expected + 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expected == 0 {
			if err := tx.Create(&next).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return repositories.ErrVersionConflict
				}
				return err
			}
		} else {
			result := tx.Model(&models.UserBalance{}).
				Where("user_id = ? AND version = ?", balance.UserID, expected).
				Select("*").
				Updates(&next)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return repositories.ErrVersionConflict
			}
		}

		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return translateError(err)
	}

	balance.Version = next.Version
	return nil
}

// FindByUserID finds the user's entries in ledger order
func (r *LedgerRepository) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	entries := []*models.LedgerEntry{}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if limit > 0 {
		q = q.Order("sequence DESC").Limit(limit)
	} else {
		q = q.Order("sequence ASC")
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, translateError(err)
	}
	if limit > 0 {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// FindBySessionID finds all entries tagged with a node session
func (r *LedgerRepository) FindBySessionID(ctx context.Context, sessionID string) ([]*models.LedgerEntry, error) {
	entries := []*models.LedgerEntry{}
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Find(&entries).Error
	if err != nil {
		return nil, translateError(err)
	}
	return entries, nil
}
