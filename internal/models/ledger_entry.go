package models

import (
	"time"
)

// LedgerSource identifies what produced a balance change.
type LedgerSource string

const (
	SourceNodeUptime      LedgerSource = "node_uptime"
	SourceTaskReward      LedgerSource = "task_reward"
	SourceReferralBonus   LedgerSource = "referral_bonus"
	SourceCreditsTransfer LedgerSource = "credits_transfer"
	SourceTaskReversal    LedgerSource = "task_reversal"
	SourceAdminAdjustment LedgerSource = "admin_adjustment"
)

// AllowsDebit reports whether entries from this source may carry a negative amount.
func (s LedgerSource) AllowsDebit() bool {
	switch s {
	case SourceCreditsTransfer, SourceTaskReversal, SourceAdminAdjustment:
		return true
	default:
		return false
	}
}

// Known reports whether the source is one the ledger accepts.
func (s LedgerSource) Known() bool {
	switch s {
	case SourceNodeUptime, SourceTaskReward, SourceReferralBonus,
		SourceCreditsTransfer, SourceTaskReversal, SourceAdminAdjustment:
		return true
	default:
		return false
	}
}

// LedgerEntry is an immutable record of one balance change.
type LedgerEntry struct {
	ID             string       `bson:"_id" json:"entryId" gorm:"primaryKey;size:64"`
	UserID         string       `bson:"userId" json:"userId" gorm:"size:64;not null;index:idx_ledger_user_time,priority:1;uniqueIndex:idx_ledger_idempotency,priority:1"`
	Amount         int64        `bson:"amount" json:"amount"`
	BalanceBefore  int64        `bson:"balanceBefore" json:"balanceBefore"`
	BalanceAfter   int64        `bson:"balanceAfter" json:"balanceAfter"`
	Source         LedgerSource `bson:"source" json:"source" gorm:"size:32;not null"`
	SessionID      *string      `bson:"sessionId,omitempty" json:"sessionId,omitempty" gorm:"size:64;index"`
	UptimeSeconds  int64        `bson:"uptimeSeconds,omitempty" json:"uptimeSeconds,omitempty"`
	IdempotencyKey *string      `bson:"idempotencyKey,omitempty" json:"idempotencyKey,omitempty" gorm:"size:191;uniqueIndex:idx_ledger_idempotency,priority:2"`
	Sequence       int64        `bson:"sequence" json:"sequence"`
	Timestamp      time.Time    `bson:"timestamp" json:"timestamp" gorm:"index:idx_ledger_user_time,priority:2"`
}

// TableName pins the gorm table name.
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
