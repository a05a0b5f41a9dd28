package memory

import (
	"context"
	"testing"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, user string, amount, before int64, key string) *models.LedgerEntry {
	e := &models.LedgerEntry{
		ID:            id,
		UserID:        user,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  before + amount,
		Source:        models.SourceTaskReward,
	}
	if key != "" {
		e.IdempotencyKey = &key
	}
	return e
}

func TestLedgerCommitChecksBalanceVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	_, err := repo.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	balance := &models.UserBalance{UserID: "u1", PointsBalance: 10, EntryCount: 1}
	require.NoError(t, repo.Commit(ctx, balance, entry("e1", "u1", 10, 0, "")))
	assert.Equal(t, int64(1), balance.Version)

	stale := &models.UserBalance{UserID: "u1", PointsBalance: 15, EntryCount: 2}
	assert.ErrorIs(t, repo.Commit(ctx, stale, entry("e2", "u1", 5, 0, "")), repositories.ErrVersionConflict)

	stored, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.PointsBalance)

	entries, err := repo.FindByUserID(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedgerIdempotencyKeyIsPerUser(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	require.NoError(t, repo.Commit(ctx, &models.UserBalance{UserID: "u1", PointsBalance: 5}, entry("e1", "u1", 5, 0, "k")))
	require.NoError(t, repo.Commit(ctx, &models.UserBalance{UserID: "u2", PointsBalance: 5}, entry("e2", "u2", 5, 0, "k")))

	next := &models.UserBalance{UserID: "u1", PointsBalance: 10, Version: 1}
	assert.ErrorIs(t, repo.Commit(ctx, next, entry("e3", "u1", 5, 5, "k")), repositories.ErrDuplicateKey)

	found, err := repo.FindByIdempotencyKey(ctx, "u2", "k")
	require.NoError(t, err)
	assert.Equal(t, "e2", found.ID)

	_, err = repo.FindByIdempotencyKey(ctx, "u3", "k")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestLedgerListing(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	session := "s1"
	var running int64
	for i, id := range []string{"e1", "e2", "e3"} {
		e := entry(id, "u1", 1, running, "")
		if i > 0 {
			e.SessionID = &session
		}
		running++
		require.NoError(t, repo.Commit(ctx, &models.UserBalance{UserID: "u1", PointsBalance: running, Version: int64(i)}, e))
	}

	last, err := repo.FindByUserID(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "e2", last[0].ID)
	assert.Equal(t, "e3", last[1].ID)

	bySession, err := repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	none, err := repo.FindBySessionID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	user := &models.User{WalletAddress: "0xABCDEF"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "0xabcdef", user.WalletAddress)

	assert.ErrorIs(t, repo.Create(ctx, &models.User{WalletAddress: "0xabcdef"}), repositories.ErrDuplicateKey)

	found, err := repo.FindByWalletAddress(ctx, "0xAbCdEf")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
