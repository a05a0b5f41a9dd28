package models

import (
	"time"
)

// User represents a node operator known to the user directory
type User struct {
	ID            string    `bson:"_id" json:"id" gorm:"primaryKey;size:64"`
	WalletAddress string    `bson:"walletAddress" json:"walletAddress" gorm:"size:128;not null;uniqueIndex"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// TableName pins the gorm table name.
func (User) TableName() string {
	return "users"
}
