package models

import (
	"time"
)

// HeartbeatRequest is the body of POST /session/heartbeat
type HeartbeatRequest struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress" binding:"omitempty,eth_addr"`
	DeviceKey     string `json:"deviceKey"`
	SessionID     string `json:"sessionId"`
}

// HeartbeatResponse is returned by the heartbeat endpoint and the node socket
type HeartbeatResponse struct {
	SessionID       string    `json:"sessionId"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

// UserRequest identifies a user by id or wallet address
type UserRequest struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress" binding:"omitempty,eth_addr"`
}

// StatusResponse is returned by POST /session/status
type StatusResponse struct {
	IsActive               bool       `json:"isActive"`
	SessionID              string     `json:"sessionId,omitempty"`
	StartedAt              *time.Time `json:"startedAt"`
	UptimeSecondsInSession int64      `json:"uptimeSecondsInSession"`
	PointsEarnedInSession  int64      `json:"pointsEarnedInSession"`
}

// StopResponse is returned by POST /session/stop
type StopResponse struct {
	PointsEarned int64 `json:"pointsEarned"`
	NewBalance   int64 `json:"newBalance"`
}

// CreditRequest is the body of POST /ledger/credit
type CreditRequest struct {
	UserID         string       `json:"userId" binding:"required"`
	Amount         int64        `json:"amount"`
	Source         LedgerSource `json:"source" binding:"required"`
	SessionID      string       `json:"sessionId"`
	IdempotencyKey string       `json:"idempotencyKey"`
}
