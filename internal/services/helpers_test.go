package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories/memory"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// flakyLedger fails the next n credits. With commitFirst the credit is written
// before the failure is reported, like a timeout after commit.
type flakyLedger struct {
	services.PointsLedger
	mu          sync.Mutex
	failures    int
	commitFirst bool
}

func (f *flakyLedger) Credit(ctx context.Context, in services.CreditInput) (*models.LedgerEntry, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail && !f.commitFirst {
		return nil, fmt.Errorf("ledger credit: %w", services.ErrStorageUnavailable)
	}
	entry, err := f.PointsLedger.Credit(ctx, in)
	if fail {
		return nil, fmt.Errorf("ledger credit: %w", services.ErrStorageUnavailable)
	}
	return entry, err
}

type fixture struct {
	clock    *fakeClock
	sessions *memory.SessionRepository
	ledger   *services.LedgerService
	flaky    *flakyLedger
	svc      *services.SessionService
}

const staleAfter = 2 * time.Minute

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRetries(t, 5)
}

func newFixtureWithRetries(t *testing.T, retries int) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, retries, 100)
}

func newFixtureWithConfig(t *testing.T, retries, batchSize int) *fixture {
	t.Helper()
	clock := newClock()
	sessions := memory.NewSessionRepository()
	ledger := services.NewLedgerService(memory.NewLedgerRepository(), time.Second, retries).WithClock(clock.Now)
	flaky := &flakyLedger{PointsLedger: ledger}
	svc := services.NewSessionService(sessions, flaky, services.SessionConfig{
		RatePerMinute:  services.DefaultRatePerMinute,
		Multiplier:     1,
		StaleAfter:     staleAfter,
		StorageTimeout: time.Second,
		MaxRetries:     retries,
		BatchSize:      batchSize,
	}).WithClock(clock.Now)

	return &fixture{clock: clock, sessions: sessions, ledger: ledger, flaky: flaky, svc: svc}
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b.PointsBalance
}

func (f *fixture) sessionEntries(t *testing.T, sessionID string) (int, int64) {
	t.Helper()
	entries, err := f.ledger.EntriesForSession(context.Background(), sessionID)
	require.NoError(t, err)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	return len(entries), sum
}

func (f *fixture) load(t *testing.T, sessionID string) *models.NodeSession {
	t.Helper()
	s, err := f.sessions.FindByID(context.Background(), sessionID)
	require.NoError(t, err)
	return s
}
