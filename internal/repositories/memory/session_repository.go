package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
)

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// SessionRepository keeps node sessions in process memory. Unlike the database
// backends it does not reject a second active session for the same device, so
// duplicate reconciliation can be exercised against it.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]models.NodeSession
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]models.NodeSession)}
}

func (r *SessionRepository) Create(_ context.Context, session *models.NodeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	if session.Version == 0 {
		session.Version = 1
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) FindByID(_ context.Context, id string) (*models.NodeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := cloneSession(&s)
	return &c, nil
}

func (r *SessionRepository) FindActiveByDevice(_ context.Context, userID, deviceKey string) ([]*models.NodeSession, error) {
	return r.filter(func(s *models.NodeSession) bool {
		return s.Status == models.SessionActive && s.UserID == userID && s.DeviceKey == deviceKey
	}, byStartedAt, 0), nil
}

func (r *SessionRepository) FindActiveByUser(_ context.Context, userID string) ([]*models.NodeSession, error) {
	return r.filter(func(s *models.NodeSession) bool {
		return s.Status == models.SessionActive && s.UserID == userID
	}, byStartedAt, 0), nil
}

func (r *SessionRepository) FindLatestByUser(_ context.Context, userID string) (*models.NodeSession, error) {
	all := r.filter(func(s *models.NodeSession) bool { return s.UserID == userID }, byStartedAt, 0)
	if len(all) == 0 {
		return nil, repositories.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (r *SessionRepository) FindActive(_ context.Context, after repositories.SessionCursor, limit int) ([]*models.NodeSession, error) {
	return r.filter(func(s *models.NodeSession) bool {
		if s.Status != models.SessionActive {
			return false
		}
		if after.IsZero() {
			return true
		}
		return s.StartedAt.After(after.StartedAt) || (s.StartedAt.Equal(after.StartedAt) && s.ID > after.ID)
	}, byStartedAt, limit), nil
}

func (r *SessionRepository) FindActiveHeartbeatBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.NodeSession, error) {
	return r.filter(func(s *models.NodeSession) bool {
		return s.Status == models.SessionActive && s.LastHeartbeatAt.Before(cutoff)
	}, byLastHeartbeat, limit), nil
}

func (r *SessionRepository) Update(_ context.Context, session *models.NodeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[session.ID]
	if !ok || stored.Version != session.Version {
		return repositories.ErrVersionConflict
	}
	session.Version++
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) filter(keep func(*models.NodeSession) bool, less func(a, b *models.NodeSession) bool, limit int) []*models.NodeSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.NodeSession{}
	for _, s := range r.sessions {
		s := s
		if keep(&s) {
			c := cloneSession(&s)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byStartedAt(a, b *models.NodeSession) bool {
	if a.StartedAt.Equal(b.StartedAt) {
		return a.ID < b.ID
	}
	return a.StartedAt.Before(b.StartedAt)
}

func byLastHeartbeat(a, b *models.NodeSession) bool {
	return a.LastHeartbeatAt.Before(b.LastHeartbeatAt)
}

func cloneSession(s *models.NodeSession) models.NodeSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return c
}
