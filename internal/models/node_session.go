package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a node session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// CloseReason records why a session was closed.
type CloseReason string

const (
	CloseStopped   CloseReason = "stopped"
	CloseStale     CloseReason = "stale"
	CloseDuplicate CloseReason = "duplicate"
)

// PendingPayout is an uptime interval already claimed on the session but not yet
// confirmed in the ledger. It is settled with its idempotency key on the next write.
type PendingPayout struct {
	Points         int64  `bson:"points" json:"points"`
	UptimeSeconds  int64  `bson:"uptimeSeconds" json:"uptimeSeconds"`
	IdempotencyKey string `bson:"idempotencyKey" json:"idempotencyKey"`
}

// NodeSession is one connect-to-disconnect span of a single device for a single user.
type NodeSession struct {
	ID                     string         `bson:"_id" json:"sessionId" gorm:"primaryKey;size:64"`
	UserID                 string         `bson:"userId" json:"userId" gorm:"size:64;not null;index:idx_node_sessions_lookup,priority:1"`
	DeviceKey              string         `bson:"deviceKey" json:"deviceKey" gorm:"size:128;not null;index:idx_node_sessions_lookup,priority:2"`
	Status                 SessionStatus  `bson:"status" json:"status" gorm:"size:16;not null;index:idx_node_sessions_lookup,priority:3;index"`
	StartedAt              time.Time      `bson:"startedAt" json:"startedAt"`
	LastHeartbeatAt        time.Time      `bson:"lastHeartbeatAt" json:"lastHeartbeatAt" gorm:"index"`
	LastPaidAt             time.Time      `bson:"lastPaidAt" json:"lastPaidAt"`
	EndedAt                *time.Time     `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	CloseReason            CloseReason    `bson:"closeReason,omitempty" json:"closeReason,omitempty" gorm:"size:16"`
	Multiplier             float64        `bson:"multiplier" json:"multiplier"`
	PointsEarnedInSession  int64          `bson:"pointsEarnedInSession" json:"pointsEarnedInSession"`
	UptimeSecondsInSession int64          `bson:"uptimeSecondsInSession" json:"uptimeSecondsInSession"`
	UptimeSecondsCredited  int64          `bson:"uptimeSecondsCredited" json:"-"`
	Pending                *PendingPayout `bson:"pending,omitempty" json:"-" gorm:"serializer:json"`
	Version                int64          `bson:"version" json:"version"`
}

// TableName pins the gorm table name.
func (NodeSession) TableName() string {
	return "node_sessions"
}

// IsActive reports the stored status only; liveness is decided by the liveness tracker.
func (s *NodeSession) IsActive() bool {
	return s.Status == SessionActive
}
