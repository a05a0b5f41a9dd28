package repositories

import (
	"context"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
)

// UserRepository is the user directory: wallet address to user id resolution
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error)
}

// SessionCursor is a keyset position in (startedAt, id) order. The zero value is the
// start of the set.
type SessionCursor struct {
	StartedAt time.Time
	ID        string
}

// CursorAfter returns the position just past s.
func CursorAfter(s *models.NodeSession) SessionCursor {
	return SessionCursor{StartedAt: s.StartedAt, ID: s.ID}
}

// IsZero reports whether the cursor is at the start of the set.
func (c SessionCursor) IsZero() bool {
	return c.ID == "" && c.StartedAt.IsZero()
}

// SessionRepository defines the interface for node session persistence.
//
// Update is a conditional write: it succeeds only if the stored version equals
// session.Version, stores version+1 and increments session.Version in place.
// Otherwise it returns ErrVersionConflict and writes nothing.
type SessionRepository interface {
	Create(ctx context.Context, session *models.NodeSession) error
	FindByID(ctx context.Context, id string) (*models.NodeSession, error)
	// FindActiveByDevice returns active sessions for the pair, oldest first.
	FindActiveByDevice(ctx context.Context, userID, deviceKey string) ([]*models.NodeSession, error)
	// FindActiveByUser returns active sessions of the user across devices, oldest first.
	FindActiveByUser(ctx context.Context, userID string) ([]*models.NodeSession, error)
	// FindLatestByUser returns the most recently started session of any status.
	FindLatestByUser(ctx context.Context, userID string) (*models.NodeSession, error)
	// FindActive returns up to limit active sessions after the cursor, ordered by
	// startedAt then id. Pass the last session of a page as the next cursor.
	FindActive(ctx context.Context, after SessionCursor, limit int) ([]*models.NodeSession, error)
	// FindActiveHeartbeatBefore returns active sessions whose last heartbeat is older than cutoff.
	FindActiveHeartbeatBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.NodeSession, error)
	Update(ctx context.Context, session *models.NodeSession) error
}

// LedgerRepository persists ledger entries and the materialized user balance.
//
// Commit inserts entry and writes balance as one atomic unit. balance.Version is the
// version that was read (0 when the user had no balance row); the write only lands if
// the stored version still matches, and balance.Version is incremented on success.
// A precondition failure returns ErrVersionConflict, a reused idempotency key returns
// ErrDuplicateKey; neither leaves partial state.
type LedgerRepository interface {
	GetBalance(ctx context.Context, userID string) (*models.UserBalance, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.LedgerEntry, error)
	Commit(ctx context.Context, balance *models.UserBalance, entry *models.LedgerEntry) error
	// FindByUserID returns the user's entries in ledger order. A positive limit keeps
	// only the most recent entries.
	FindByUserID(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]*models.LedgerEntry, error)
}
