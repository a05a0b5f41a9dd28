package models

import (
	"time"
)

// UserBalance is the materialized running balance of one user.
// Only the points ledger service writes it.
type UserBalance struct {
	UserID             string    `bson:"_id" json:"userId" gorm:"primaryKey;size:64"`
	PointsBalance      int64     `bson:"pointsBalance" json:"pointsBalance"`
	UptimeSecondsTotal int64     `bson:"uptimeSecondsTotal" json:"uptimeSecondsTotal"`
	LastActiveAt       time.Time `bson:"lastActiveAt" json:"lastActiveAt"`
	EntryCount         int64     `bson:"entryCount" json:"entryCount"`
	Version            int64     `bson:"version" json:"-"`
	UpdatedAt          time.Time `bson:"updatedAt" json:"updatedAt"`
}

// TableName pins the gorm table name.
func (UserBalance) TableName() string {
	return "user_balances"
}
