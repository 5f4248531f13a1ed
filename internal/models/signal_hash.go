package models

import (
	"time"
)

// SignalHash is the idempotency log of processed webhook signals. The unique
// index on hash makes concurrent duplicate deliveries an insert-or-reject
// race the database settles, not application code.
type SignalHash struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	BotID      uint      `gorm:"not null;index" json:"bot_id"`
	Hash       string    `gorm:"size:64;not null;uniqueIndex" json:"hash"`
	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
}

func (SignalHash) TableName() string {
	return "signal_hash"
}
