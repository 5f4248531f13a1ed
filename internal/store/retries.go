package store

import (
	"fmt"
	"time"

	"perpcontrol/internal/models"
)

// CreateRetry persists a new retry entry.
func (s *Store) CreateRetry(entry *models.RetryEntry) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save retry entry: %w", err)
	}
	return nil
}

// ClaimDueRetries atomically claims pending entries whose next_retry_at has
// passed, flipping them to processing so a concurrent sweep cannot pick them
// up. Claim-then-read, never read-then-write.
func (s *Store) ClaimDueRetries(now time.Time, limit int) ([]models.RetryEntry, error) {
	var due []models.RetryEntry
	if err := s.db.Where("status = ? AND next_retry_at <= ?", models.RetryStatusPending, now).
		Order("next_retry_at ASC").Limit(limit).Find(&due).Error; err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}

	claimed := make([]models.RetryEntry, 0, len(due))
	for _, entry := range due {
		res := s.db.Model(&models.RetryEntry{}).
			Where("id = ? AND status = ?", entry.ID, models.RetryStatusPending).
			Update("status", models.RetryStatusProcessing)
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue // another sweep won the claim
		}
		entry.Status = models.RetryStatusProcessing
		claimed = append(claimed, entry)
	}
	return claimed, nil
}

// RescheduleRetry returns a claimed entry to pending with an incremented
// attempt count and a later next_retry_at.
func (s *Store) RescheduleRetry(id uint, attempt int, nextRetryAt time.Time, lastError string) error {
	return s.db.Model(&models.RetryEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.RetryStatusPending,
			"attempt":       attempt,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
		}).Error
}

// FinishRetry marks a claimed entry terminal (succeeded or exhausted).
func (s *Store) FinishRetry(id uint, status, lastError string) error {
	return s.db.Model(&models.RetryEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
}

// PendingRetries lists non-terminal entries, newest first, for the admin API.
func (s *Store) PendingRetries(limit int) ([]models.RetryEntry, error) {
	var rows []models.RetryEntry
	err := s.db.Where("status IN ?", []string{models.RetryStatusPending, models.RetryStatusProcessing}).
		Order("next_retry_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
