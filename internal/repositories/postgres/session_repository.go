package postgres

import (
	"context"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"gorm.io/gorm"
)

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// SessionRepository handles Postgres operations for NodeSession
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.NodeSession) error {
	if session.Version == 0 {
		session.Version = 1
	}
	return translateError(r.db.WithContext(ctx).Create(session).Error)
}

// FindByID finds a session by ID
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.NodeSession, error) {
	var session models.NodeSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

// FindActiveByDevice finds active sessions for a user/device pair, oldest first
func (r *SessionRepository) FindActiveByDevice(ctx context.Context, userID, deviceKey string) ([]*models.NodeSession, error) {
	return r.find(r.db.WithContext(ctx).
		Where("user_id = ? AND device_key = ? AND status = ?", userID, deviceKey, models.SessionActive).
		Order("started_at ASC, id ASC"))
}

// FindActiveByUser finds active sessions of a user, oldest first
func (r *SessionRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.NodeSession, error) {
	return r.find(r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SessionActive).
		Order("started_at ASC, id ASC"))
}

// FindLatestByUser finds the most recently started session of a user
func (r *SessionRepository) FindLatestByUser(ctx context.Context, userID string) (*models.NodeSession, error) {
	var session models.NodeSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

// FindActive finds up to limit active sessions after the cursor, oldest first
func (r *SessionRepository) FindActive(ctx context.Context, after repositories.SessionCursor, limit int) ([]*models.NodeSession, error) {
	q := r.db.WithContext(ctx).Where("status = ?", models.SessionActive)
	if !after.IsZero() {
		q = q.Where("(started_at > ? OR (started_at = ? AND id > ?))", after.StartedAt, after.StartedAt, after.ID)
	}
	q = q.Order("started_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// FindActiveHeartbeatBefore finds active sessions whose last heartbeat is older than cutoff
func (r *SessionRepository) FindActiveHeartbeatBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.NodeSession, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND last_heartbeat_at < ?", models.SessionActive, cutoff).
		Order("last_heartbeat_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// Update writes every column if the stored version still matches session.Version
func (r *SessionRepository) Update(ctx context.Context, session *models.NodeSession) error {
	expected := session.Version
	next := *session
	next.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(&models.NodeSession{}).
		Where("id = ? AND version = ?", session.ID, expected).
		Select("*").
		Updates(&next)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrVersionConflict
	}
	session.Version = next.Version
	return nil
}

func (r *SessionRepository) find(q *gorm.DB) ([]*models.NodeSession, error) {
	sessions := []*models.NodeSession{}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, translateError(err)
	}
	return sessions, nil
}
