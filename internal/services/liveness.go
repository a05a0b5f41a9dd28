package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"golang.org/x/exp/slog"
)

// LivenessTracker is the single staleness policy for node sessions.
type LivenessTracker struct {
	StaleAfter time.Duration
}

// IsStale reports whether the last heartbeat is older than the grace window.
func (t LivenessTracker) IsStale(s *models.NodeSession, now time.Time) bool {
	return now.Sub(s.LastHeartbeatAt) > t.StaleAfter
}

// IsAlive reports whether the session is active and not stale.
func (t LivenessTracker) IsAlive(s *models.NodeSession, now time.Time) bool {
	return s.IsActive() && !t.IsStale(s, now)
}

// StaleCutoff is the heartbeat time before which an active session is stale.
func (t LivenessTracker) StaleCutoff(now time.Time) time.Time {
	return now.Add(-t.StaleAfter)
}

// SweepSummary reports what a stale sweep did.
type SweepSummary struct {
	Scanned    int   `json:"scanned"`
	Closed     int   `json:"closed"`
	Duplicates int   `json:"duplicates"`
	PointsPaid int64 `json:"pointsPaid"`
	Failed     int   `json:"failed"`
}

// CloseStaleSessions closes every active session whose heartbeat is older than the
// grace window. Uptime is paid up to the last heartbeat, never up to the sweep time.
func (s *SessionService) CloseStaleSessions(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	now := s.now()

	stale, err := s.findActiveHeartbeatBefore(ctx, s.liveness.StaleCutoff(now))
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(stale)

	// Group candidates per device, oldest first, so closing one never promotes a
	// duplicate to canonical within the same sweep.
	sort.Slice(stale, func(i, j int) bool {
		a, b := stale[i], stale[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.DeviceKey != b.DeviceKey {
			return a.DeviceKey < b.DeviceKey
		}
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})

	var errs []error
	seen := make(map[string]bool)
	for _, candidate := range stale {
		pair := candidate.UserID + "\x00" + candidate.DeviceKey
		canonical := false
		if !seen[pair] {
			seen[pair] = true
			var err error
			if canonical, err = s.isCanonical(ctx, candidate); err != nil {
				summary.Failed++
				errs = append(errs, err)
				continue
			}
		}

		var closed *models.NodeSession
		var paid int64
		var err error
		if canonical {
			closed, paid, err = s.closeByID(ctx, candidate.ID, models.CloseStale, closeAtLastHeartbeat)
		} else {
			closed, paid, err = s.closeByID(ctx, candidate.ID, models.CloseDuplicate, closeWithoutPayout)
		}
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}
		summary.PointsPaid += paid
		if closed == nil {
			continue
		}
		if canonical {
			summary.Closed++
		} else {
			summary.Duplicates++
		}
		slog.Info("Closed stale node session",
			"sessionId", closed.ID, "userId", closed.UserID, "reason", closed.CloseReason,
			"lastHeartbeatAt", closed.LastHeartbeatAt, "pointsEarned", closed.PointsEarnedInSession)
	}

	return summary, errors.Join(errs...)
}
