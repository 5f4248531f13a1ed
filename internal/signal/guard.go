package signal

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"perpcontrol/internal/models"
)

// DuplicateSignalError marks a webhook delivery whose hash was already
// recorded. Not a failure: the first delivery was accepted.
type DuplicateSignalError struct {
	Hash string
}

func (e *DuplicateSignalError) Error() string {
	return fmt.Sprintf("duplicate signal %s", e.Hash)
}

// Guard deduplicates webhook deliveries through the signal_hash table. The
// unique index on hash makes the insert itself the check, so two concurrent
// deliveries of the same signal cannot both pass.
type Guard struct {
	db *gorm.DB
}

func NewGuard(db *gorm.DB) *Guard {
	return &Guard{db: db}
}

// RegisterIntent records the intent's signal hash and the intent itself in
// one transaction, or returns DuplicateSignalError if the hash was already
// recorded. Committing both together means a failed intake leaves no hash
// behind, so the sender's retransmit of the same alert is still accepted.
func (g *Guard) RegisterIntent(intent *models.TradeIntent) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		rec := models.SignalHash{BotID: intent.BotID, Hash: intent.SignalHash}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return &DuplicateSignalError{Hash: intent.SignalHash}
			}
			return fmt.Errorf("failed to record signal hash: %w", err)
		}
		if err := tx.Create(intent).Error; err != nil {
			return fmt.Errorf("failed to save trade intent: %w", err)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Postgres unique_violation surfaces as SQLSTATE 23505 through the driver.
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}
