package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// maxDeviceKeyLength bounds client supplied device keys.
const maxDeviceKeyLength = 128

// PointsLedger is the part of the ledger service the session manager pays through.
type PointsLedger interface {
	Credit(ctx context.Context, in CreditInput) (*models.LedgerEntry, error)
	GetBalance(ctx context.Context, userID string) (*models.UserBalance, error)
}

// SessionConfig holds the accrual and liveness policy of the session manager.
type SessionConfig struct {
	RatePerMinute  float64
	Multiplier     float64
	StaleAfter     time.Duration
	StorageTimeout time.Duration
	MaxRetries     int
	BatchSize      int
}

// StopResult is what a stop call closed and paid.
type StopResult struct {
	PointsEarned int64
	PointsPaid   int64
	NewBalance   int64
	Sessions     []*models.NodeSession
}

// SessionStatus describes the user's current node session.
type SessionStatus struct {
	IsActive      bool
	Session       *models.NodeSession
	UptimeSeconds int64
}

// AccrualSummary reports what a periodic accrual run did.
type AccrualSummary struct {
	Scanned    int   `json:"scanned"`
	Paid       int   `json:"paid"`
	Skipped    int   `json:"skipped"`
	Duplicates int   `json:"duplicates"`
	Failed     int   `json:"failed"`
	PointsPaid int64 `json:"pointsPaid"`
}

type closeMode int

const (
	// closeAtNow treats the close call as a final heartbeat unless the session is stale.
	closeAtNow closeMode = iota
	closeAtLastHeartbeat
	closeWithoutPayout
)

// SessionService owns node session state transitions. Every write is a version
// checked update; a rejected write is retried from a fresh read, never overwritten.
//
// Uptime is paid in two steps so a session write and a ledger write never have to
// share a transaction: the interval is first claimed on the session as a pending
// payout carrying an idempotency key, then credited to the ledger and cleared. A
// pending payout left behind by a failure is settled by the next operation that
// touches the session, and the key makes the credit land exactly once.
type SessionService struct {
	sessions   repositories.SessionRepository
	ledger     PointsLedger
	liveness   LivenessTracker
	rate       float64
	multiplier float64
	timeout    time.Duration
	maxRetries int
	batchSize  int
	now        func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(sessions repositories.SessionRepository, ledger PointsLedger, cfg SessionConfig) *SessionService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &SessionService{
		sessions:   sessions,
		ledger:     ledger,
		liveness:   LivenessTracker{StaleAfter: cfg.StaleAfter},
		rate:       cfg.RatePerMinute,
		multiplier: cfg.Multiplier,
		timeout:    cfg.StorageTimeout,
		maxRetries: cfg.MaxRetries,
		batchSize:  cfg.BatchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Liveness returns the staleness policy in use.
func (s *SessionService) Liveness() LivenessTracker {
	return s.liveness
}

// StartOrHeartbeat heartbeats the active session of the user's device, creating one
// when none exists. It returns the canonical session for the device.
func (s *SessionService) StartOrHeartbeat(ctx context.Context, userID, deviceKey string) (*models.NodeSession, error) {
	if userID == "" {
		return nil, validationError("userId is required")
	}
	if deviceKey == "" || len(deviceKey) > maxDeviceKeyLength {
		return nil, validationError("deviceKey must be 1-%d characters", maxDeviceKeyLength)
	}

	var result *models.NodeSession
	err := s.retry("heartbeat", func() error {
		now := s.now()
		actives, err := s.findActiveByDevice(ctx, userID, deviceKey)
		if err != nil {
			return err
		}
		if len(actives) == 0 {
			result, err = s.create(ctx, userID, deviceKey, now)
			return err
		}

		canonical := actives[0]
		for _, dup := range actives[1:] {
			if _, _, err := s.closeByID(ctx, dup.ID, models.CloseDuplicate, closeWithoutPayout); err != nil {
				return err
			}
			slog.Warn("Reconciled duplicate node session",
				"userId", userID, "deviceKey", deviceKey, "duplicateId", dup.ID, "canonicalId", canonical.ID)
		}

		// The gap after a stale heartbeat was never observed: close the old span
		// paid up to its last heartbeat and start over.
		if s.liveness.IsStale(canonical, now) {
			if _, _, err := s.closeByID(ctx, canonical.ID, models.CloseStale, closeAtLastHeartbeat); err != nil {
				return err
			}
			result, err = s.create(ctx, userID, deviceKey, now)
			return err
		}

		if _, err := s.settle(ctx, canonical); err != nil {
			return err
		}
		if now.After(canonical.LastHeartbeatAt) {
			canonical.LastHeartbeatAt = now
		}
		if err := s.update(ctx, canonical); err != nil {
			return err
		}
		result = canonical
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Heartbeat records liveness for a session by id. A closed session does not fail
// the call: a fresh active session is started for the same user and device.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string) (*models.NodeSession, error) {
	return s.HeartbeatAs(ctx, "", sessionID)
}

// HeartbeatAs is Heartbeat restricted to sessions owned by userID. Sessions of other
// users are reported as not found. An empty userID skips the ownership check.
func (s *SessionService) HeartbeatAs(ctx context.Context, userID, sessionID string) (*models.NodeSession, error) {
	if sessionID == "" {
		return nil, validationError("sessionId is required")
	}
	sess, err := s.findByID(ctx, sessionID)
	if err != nil {
		return nil, storageError("heartbeat", err)
	}
	if userID != "" && sess.UserID != userID {
		return nil, fmt.Errorf("heartbeat: session %s: %w", sessionID, ErrNotFound)
	}
	return s.StartOrHeartbeat(ctx, sess.UserID, sess.DeviceKey)
}

// Stop closes every active session of the user and pays the final interval. A user
// with no active session gets an empty result, not an error.
func (s *SessionService) Stop(ctx context.Context, userID string) (*StopResult, error) {
	if userID == "" {
		return nil, validationError("userId is required")
	}
	actives, err := s.findActiveByUser(ctx, userID)
	if err != nil {
		return nil, storageError("stop", err)
	}

	result := &StopResult{Sessions: []*models.NodeSession{}}
	canonical := make(map[string]bool)
	for _, sess := range actives {
		mode, reason := closeAtNow, models.CloseStopped
		if canonical[sess.DeviceKey] {
			mode, reason = closeWithoutPayout, models.CloseDuplicate
		}
		canonical[sess.DeviceKey] = true

		closed, paid, err := s.closeByID(ctx, sess.ID, reason, mode)
		if err != nil {
			return nil, err
		}
		result.PointsPaid += paid
		if closed == nil || reason != models.CloseStopped {
			continue
		}
		result.PointsEarned += closed.PointsEarnedInSession
		result.Sessions = append(result.Sessions, closed)
		slog.Info("Node session stopped",
			"sessionId", closed.ID, "userId", userID,
			"uptimeSeconds", closed.UptimeSecondsInSession, "pointsEarned", closed.PointsEarnedInSession)
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	result.NewBalance = balance.PointsBalance
	return result, nil
}

// Status reports the user's live session, or the latest one when none is alive.
func (s *SessionService) Status(ctx context.Context, userID string) (*SessionStatus, error) {
	if userID == "" {
		return nil, validationError("userId is required")
	}
	now := s.now()
	actives, err := s.findActiveByUser(ctx, userID)
	if err != nil {
		return nil, storageError("status", err)
	}

	var live *models.NodeSession
	for _, sess := range actives {
		if s.liveness.IsAlive(sess, now) && (live == nil || sess.LastHeartbeatAt.After(live.LastHeartbeatAt)) {
			live = sess
		}
	}
	if live != nil {
		return &SessionStatus{
			IsActive:      true,
			Session:       live,
			UptimeSeconds: int64(now.Sub(live.StartedAt) / time.Second),
		}, nil
	}

	latest, err := s.findLatestByUser(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &SessionStatus{}, nil
	}
	if err != nil {
		return nil, storageError("status", err)
	}
	uptime := latest.UptimeSecondsInSession
	if latest.IsActive() {
		uptime = int64(latest.LastHeartbeatAt.Sub(latest.StartedAt) / time.Second)
	}
	return &SessionStatus{Session: latest, UptimeSeconds: uptime}, nil
}

// AccrueActiveSessions pays every canonical, non-stale active session up to its
// last heartbeat, reading active sessions in pages of the batch size. Stale sessions
// are left to CloseStaleSessions.
func (s *SessionService) AccrueActiveSessions(ctx context.Context) (AccrualSummary, error) {
	var summary AccrualSummary
	var errs []error
	now := s.now()
	seen := make(map[string]bool)

	var cursor repositories.SessionCursor
	for {
		page, err := s.findActive(ctx, cursor)
		if err != nil {
			errs = append(errs, storageError("accrue", err))
			break
		}
		summary.Scanned += len(page)
		errs = append(errs, s.accruePage(ctx, page, now, seen, &summary)...)

		if s.batchSize <= 0 || len(page) < s.batchSize {
			break
		}
		cursor = repositories.CursorAfter(page[len(page)-1])
	}

	return summary, errors.Join(errs...)
}

// accruePage pays one page of active sessions. seen carries the (user, device) pairs
// whose canonical session was already handled on an earlier page.
func (s *SessionService) accruePage(ctx context.Context, actives []*models.NodeSession, now time.Time, seen map[string]bool, summary *AccrualSummary) []error {
	var errs []error
	for _, sess := range actives {
		pair := sess.UserID + "\x00" + sess.DeviceKey
		if seen[pair] {
			if _, _, err := s.closeByID(ctx, sess.ID, models.CloseDuplicate, closeWithoutPayout); err != nil {
				summary.Failed++
				errs = append(errs, err)
				continue
			}
			summary.Duplicates++
			continue
		}
		seen[pair] = true

		if s.liveness.IsStale(sess, now) {
			summary.Skipped++
			continue
		}
		paid, err := s.payoutByID(ctx, sess.ID)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}
		if paid > 0 {
			summary.Paid++
			summary.PointsPaid += paid
		}
	}
	return errs
}

// payoutByID pays a live session up to its last heartbeat.
func (s *SessionService) payoutByID(ctx context.Context, id string) (int64, error) {
	var paid int64
	err := s.retry("accrue session", func() error {
		sess, err := s.findByID(ctx, id)
		if err != nil {
			return err
		}
		if !s.liveness.IsAlive(sess, s.now()) {
			return nil
		}
		n, err := s.payout(ctx, sess, sess.LastHeartbeatAt, false)
		paid += n
		return err
	})
	return paid, err
}

// closeByID closes an active session. It returns the closed session, or nil when it
// was already closed, and the points credited by this call.
func (s *SessionService) closeByID(ctx context.Context, id string, reason models.CloseReason, mode closeMode) (*models.NodeSession, int64, error) {
	var closed *models.NodeSession
	var paid int64
	err := s.retry("close session", func() error {
		sess, err := s.findByID(ctx, id)
		if err != nil {
			return err
		}
		if !sess.IsActive() {
			closed = nil
			return nil
		}
		now := s.now()

		if mode == closeAtNow && !s.liveness.IsStale(sess, now) && now.After(sess.LastHeartbeatAt) {
			sess.LastHeartbeatAt = now
		}
		if mode != closeWithoutPayout {
			n, err := s.payout(ctx, sess, sess.LastHeartbeatAt, true)
			paid += n
			if err != nil {
				return err
			}
		} else {
			n, err := s.settle(ctx, sess)
			paid += n
			if err != nil {
				return err
			}
		}

		ended := now
		sess.Status = models.SessionClosed
		sess.EndedAt = &ended
		sess.CloseReason = reason
		if err := s.update(ctx, sess); err != nil {
			return err
		}
		closed = sess
		return nil
	})
	return closed, paid, err
}

// payout settles any earlier claim, then claims and settles the interval up to until.
// A final payout also credits uptime that did not add up to a whole point.
func (s *SessionService) payout(ctx context.Context, sess *models.NodeSession, until time.Time, final bool) (int64, error) {
	paid, err := s.settle(ctx, sess)
	if err != nil {
		return paid, err
	}
	if !s.claim(sess, until, final) {
		return paid, nil
	}
	if err := s.update(ctx, sess); err != nil {
		return paid, err
	}
	n, err := s.settle(ctx, sess)
	return paid + n, err
}

// claim advances the session's accrual to until and records what is owed as a
// pending payout, reporting whether one was recorded. Points are computed
// cumulatively from startedAt so rounding never loses or duplicates a point
// across ticks.
func (s *SessionService) claim(sess *models.NodeSession, until time.Time, final bool) bool {
	if until.Before(sess.LastPaidAt) {
		return false
	}
	elapsed := until.Sub(sess.StartedAt)
	total, err := ComputePoints(elapsed, s.rate, sess.Multiplier)
	if err != nil {
		slog.Warn("Accrual treated as zero", "sessionId", sess.ID, "elapsed", elapsed, "error", err)
		return false
	}

	sess.LastPaidAt = until
	if uptime := int64(elapsed / time.Second); uptime > sess.UptimeSecondsInSession {
		sess.UptimeSecondsInSession = uptime
	}
	owed := total - sess.PointsEarnedInSession
	uptime := sess.UptimeSecondsInSession - sess.UptimeSecondsCredited
	if owed <= 0 && !(final && uptime > 0) {
		return false
	}

	if owed > 0 {
		sess.PointsEarnedInSession = total
	} else {
		owed = 0
	}
	sess.Pending = &models.PendingPayout{
		Points:         owed,
		UptimeSeconds:  uptime,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", models.SourceNodeUptime, sess.ID, sess.Version+1),
	}
	sess.UptimeSecondsCredited = sess.UptimeSecondsInSession
	return true
}

// settle credits the pending payout, if any, and clears it from the session.
func (s *SessionService) settle(ctx context.Context, sess *models.NodeSession) (int64, error) {
	pending := sess.Pending
	if pending == nil {
		return 0, nil
	}
	_, err := s.ledger.Credit(ctx, CreditInput{
		UserID:         sess.UserID,
		Amount:         pending.Points,
		Source:         models.SourceNodeUptime,
		SessionID:      sess.ID,
		IdempotencyKey: pending.IdempotencyKey,
		UptimeSeconds:  pending.UptimeSeconds,
	})
	if err != nil {
		return 0, err
	}
	sess.Pending = nil
	if err := s.update(ctx, sess); err != nil {
		return 0, err
	}
	return pending.Points, nil
}

// isCanonical reports whether sess is the oldest active session of its device.
func (s *SessionService) isCanonical(ctx context.Context, sess *models.NodeSession) (bool, error) {
	actives, err := s.findActiveByDevice(ctx, sess.UserID, sess.DeviceKey)
	if err != nil {
		return false, storageError("canonical session", err)
	}
	return len(actives) == 0 || actives[0].ID == sess.ID, nil
}

func (s *SessionService) create(ctx context.Context, userID, deviceKey string, now time.Time) (*models.NodeSession, error) {
	sess := &models.NodeSession{
		ID:              uuid.NewString(),
		UserID:          userID,
		DeviceKey:       deviceKey,
		Status:          models.SessionActive,
		StartedAt:       now,
		LastHeartbeatAt: now,
		LastPaidAt:      now,
		Multiplier:      s.multiplier,
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	slog.Info("Node session started", "sessionId", sess.ID, "userId", userID, "deviceKey", deviceKey)
	return sess, nil
}

// retry runs fn until it stops hitting version conflicts, re-reading each time.
func (s *SessionService) retry(op string, fn func() error) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) && !errors.Is(err, repositories.ErrDuplicateKey) {
			return storageError(op, err)
		}
		slog.Debug("Session write conflict, retrying", "op", op, "attempt", attempt)
	}
	return fmt.Errorf("%s: %w after %d attempts", op, ErrConcurrencyConflict, s.maxRetries)
}

func (s *SessionService) update(ctx context.Context, sess *models.NodeSession) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.Update(ctx, sess)
}

func (s *SessionService) findByID(ctx context.Context, id string) (*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.FindByID(ctx, id)
}

func (s *SessionService) findActiveByDevice(ctx context.Context, userID, deviceKey string) ([]*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.FindActiveByDevice(ctx, userID, deviceKey)
}

func (s *SessionService) findActiveByUser(ctx context.Context, userID string) ([]*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.FindActiveByUser(ctx, userID)
}

func (s *SessionService) findLatestByUser(ctx context.Context, userID string) (*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.FindLatestByUser(ctx, userID)
}

func (s *SessionService) findActive(ctx context.Context, after repositories.SessionCursor) ([]*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sessions.FindActive(ctx, after, s.batchSize)
}

func (s *SessionService) findActiveHeartbeatBefore(ctx context.Context, cutoff time.Time) ([]*models.NodeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sessions, err := s.sessions.FindActiveHeartbeatBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		return nil, storageError("find stale sessions", err)
	}
	return sessions, nil
}
