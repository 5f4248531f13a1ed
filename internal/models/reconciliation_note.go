package models

import (
	"time"
)

// ReconciliationNote is the audit trail of snapshot corrections. One row per
// drift the reconciler found and overwrote with venue truth.
type ReconciliationNote struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	BotID       uint      `gorm:"not null;index" json:"bot_id"`
	Market      string    `gorm:"size:32;not null" json:"market"`
	LocalSize   float64   `json:"local_size"`
	VenueSize   float64   `json:"venue_size"`
	Delta       float64   `json:"delta"`
	Detail      string    `gorm:"size:255;default:''" json:"detail"`
	CorrectedAt time.Time `json:"corrected_at" gorm:"autoCreateTime"`
}

func (ReconciliationNote) TableName() string {
	return "reconciliation_note"
}
