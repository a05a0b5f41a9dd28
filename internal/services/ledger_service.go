package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure LedgerService satisfies the contract sessions depend on
var _ PointsLedger = (*LedgerService)(nil)

// CreditInput describes one balance change.
type CreditInput struct {
	UserID         string
	Amount         int64
	Source         models.LedgerSource
	SessionID      string
	IdempotencyKey string
	// UptimeSeconds is added to the user's uptime total along with the points.
	UptimeSeconds int64
}

// BalanceReport is the result of replaying a user's ledger.
type BalanceReport struct {
	UserID          string `json:"userId"`
	StoredBalance   int64  `json:"storedBalance"`
	ReplayedBalance int64  `json:"replayedBalance"`
	EntryCount      int    `json:"entryCount"`
	Consistent      bool   `json:"consistent"`
	// BrokenAtSequence is the first entry whose before/after snapshot breaks the chain.
	BrokenAtSequence *int64 `json:"brokenAtSequence,omitempty"`
}

// LedgerService is the single writer of user balances. Every reward source goes
// through Credit so all of them share the same consistency guarantee.
type LedgerService struct {
	repo       repositories.LedgerRepository
	timeout    time.Duration
	maxRetries int
	now        func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(repo repositories.LedgerRepository, timeout time.Duration, maxRetries int) *LedgerService {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &LedgerService{
		repo:       repo,
		timeout:    timeout,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Credit appends a ledger entry and updates the user's balance atomically.
//
// A zero amount with no uptime is a no-op and returns a nil entry; a zero amount
// carrying uptime is recorded so the uptime total stays complete. Negative amounts
// are only accepted from debit sources and must be covered by the current balance.
// Credits that would overflow the balance or the uptime total are rejected. When an
// idempotency key is given and already recorded for the user, the recorded entry
// is returned and nothing is written.
func (s *LedgerService) Credit(ctx context.Context, in CreditInput) (*models.LedgerEntry, error) {
	if in.UserID == "" {
		return nil, validationError("userId is required")
	}
	if !in.Source.Known() {
		return nil, validationError("unknown ledger source %q", in.Source)
	}
	if in.UptimeSeconds < 0 {
		return nil, validationError("uptimeSeconds must not be negative")
	}
	if in.Amount == 0 && in.UptimeSeconds == 0 {
		return nil, nil
	}
	if in.Amount == math.MinInt64 {
		return nil, validationError("amount out of range")
	}
	if in.Amount < 0 && !in.Source.AllowsDebit() {
		return nil, validationError("source %q does not allow debits", in.Source)
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		entry, err := s.tryCredit(ctx, in)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, repositories.ErrVersionConflict),
			errors.Is(err, repositories.ErrDuplicateKey):
			// Re-read: either the balance moved or a concurrent retry recorded the key.
			slog.Debug("Ledger commit conflict, retrying", "userId", in.UserID, "attempt", attempt)
			continue
		default:
			return nil, storageError("ledger credit", err)
		}
	}
	return nil, fmt.Errorf("ledger credit for user %s: %w after %d attempts", in.UserID, ErrConcurrencyConflict, s.maxRetries)
}

// CreditExternal is Credit for callers outside the session engine. Node uptime
// entries and session references are reserved for session payouts.
func (s *LedgerService) CreditExternal(ctx context.Context, in CreditInput) (*models.LedgerEntry, error) {
	if in.Source == models.SourceNodeUptime {
		return nil, validationError("source %q is reserved for node sessions", in.Source)
	}
	if in.SessionID != "" {
		return nil, validationError("sessionId is reserved for node sessions")
	}
	if in.UptimeSeconds != 0 {
		return nil, validationError("uptimeSeconds is reserved for node sessions")
	}
	return s.Credit(ctx, in)
}

func (s *LedgerService) tryCredit(ctx context.Context, in CreditInput) (*models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}

	balance, err := s.repo.GetBalance(ctx, in.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		balance = &models.UserBalance{UserID: in.UserID}
	} else if err != nil {
		return nil, err
	}

	if in.Amount < 0 && balance.PointsBalance < -in.Amount {
		return nil, fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientBalance, balance.PointsBalance, -in.Amount)
	}
	if in.Amount > 0 && balance.PointsBalance > math.MaxInt64-in.Amount {
		return nil, validationError("credit of %d overflows balance %d", in.Amount, balance.PointsBalance)
	}
	if balance.UptimeSecondsTotal > math.MaxInt64-in.UptimeSeconds {
		return nil, validationError("uptime of %ds overflows total %d", in.UptimeSeconds, balance.UptimeSecondsTotal)
	}

	// Timestamps never go backwards per user so timestamp order equals ledger order.
	now := s.now()
	if now.Before(balance.UpdatedAt) {
		now = balance.UpdatedAt
	}

	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Amount:        in.Amount,
		BalanceBefore: balance.PointsBalance,
		BalanceAfter:  balance.PointsBalance + in.Amount,
		Source:        in.Source,
		UptimeSeconds: in.UptimeSeconds,
		Sequence:      balance.EntryCount + 1,
		Timestamp:     now,
	}
	if in.SessionID != "" {
		sessionID := in.SessionID
		entry.SessionID = &sessionID
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	next := *balance
	next.PointsBalance = entry.BalanceAfter
	next.UptimeSecondsTotal += in.UptimeSeconds
	next.EntryCount = entry.Sequence
	next.LastActiveAt = now
	next.UpdatedAt = now

	if err := s.repo.Commit(ctx, &next, entry); err != nil {
		return nil, err
	}

	slog.Info("Ledger entry recorded",
		"userId", entry.UserID, "entryId", entry.ID, "amount", entry.Amount,
		"source", entry.Source, "balanceAfter", entry.BalanceAfter)
	return entry, nil
}

// GetBalance returns the user's balance; users without entries have a zero balance.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*models.UserBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	balance, err := s.repo.GetBalance(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.UserBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, storageError("get balance", err)
	}
	return balance, nil
}

// ListEntries returns the user's most recent entries, oldest first.
func (s *LedgerService) ListEntries(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries, err := s.repo.FindByUserID(ctx, userID, limit)
	if err != nil {
		return nil, storageError("list entries", err)
	}
	return entries, nil
}

// EntriesForSession returns every entry tagged with the node session.
func (s *LedgerService) EntriesForSession(ctx context.Context, sessionID string) ([]*models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, storageError("session entries", err)
	}
	return entries, nil
}

// VerifyBalance replays the user's full history and compares it with the stored balance.
func (s *LedgerService) VerifyBalance(ctx context.Context, userID string) (*BalanceReport, error) {
	entries, err := s.ListEntries(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	replayed, brokenAt := ReplayEntries(entries)
	report := &BalanceReport{
		UserID:           userID,
		StoredBalance:    balance.PointsBalance,
		ReplayedBalance:  replayed,
		EntryCount:       len(entries),
		BrokenAtSequence: brokenAt,
	}
	report.Consistent = brokenAt == nil && replayed == balance.PointsBalance
	if !report.Consistent {
		slog.Error("Ledger replay mismatch", "userId", userID,
			"stored", report.StoredBalance, "replayed", report.ReplayedBalance)
	}
	return report, nil
}

// ReplayEntries folds entries in ledger order starting from zero. It returns the
// replayed balance and the sequence of the first entry that breaks the
// before/after chain, if any.
func ReplayEntries(entries []*models.LedgerEntry) (int64, *int64) {
	var balance int64
	for _, e := range entries {
		if e.BalanceBefore != balance || e.BalanceAfter != e.BalanceBefore+e.Amount {
			seq := e.Sequence
			return balance, &seq
		}
		balance = e.BalanceAfter
	}
	return balance, nil
}
