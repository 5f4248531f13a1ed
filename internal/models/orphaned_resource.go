package models

import (
	"time"
)

// Orphaned resource types.
const (
	OrphanSubaccountUnfunded = "subaccount_unfunded" // initialized but deposit failed
	OrphanSubaccountUntraded = "subaccount_untraded" // funded but never traded
)

// OrphanedResource records a venue resource left behind by a multi-step
// executor operation that partially succeeded, so it can be reconciled or
// cleaned up later instead of being silently abandoned.
type OrphanedResource struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	BotID        uint      `gorm:"not null;index" json:"bot_id"`
	ResourceType string    `gorm:"size:32;not null" json:"resource_type"`
	SubaccountID uint16    `gorm:"not null" json:"subaccount_id"`
	Detail       string    `gorm:"type:text;default:''" json:"detail"`
	Status       string    `gorm:"size:10;not null;default:'open'" json:"status"` // open / cleaned
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (OrphanedResource) TableName() string {
	return "orphaned_resource"
}
