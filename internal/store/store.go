// Package store owns all database access for the execution pipeline. The
// domain packages depend on narrow interfaces satisfied by Store so tests
// can substitute fakes.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"perpcontrol/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetBot loads a bot configuration by id.
func (s *Store) GetBot(id uint) (*models.BotConfig, error) {
	var bot models.BotConfig
	if err := s.db.First(&bot, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load bot %d: %w", id, err)
	}
	return &bot, nil
}

// UpdateBotSubaccount persists subaccount lifecycle fields after lazy
// initialization steps.
func (s *Store) UpdateBotSubaccount(bot *models.BotConfig) error {
	return s.db.Model(&models.BotConfig{}).Where("id = ?", bot.ID).
		Updates(map[string]interface{}{
			"subaccount_id":     bot.SubaccountID,
			"subaccount_status": bot.SubaccountStatus,
		}).Error
}

// PauseBot sets the pause reason and disables execution.
func (s *Store) PauseBot(botID uint, reason string) error {
	return s.db.Model(&models.BotConfig{}).Where("id = ?", botID).
		Updates(map[string]interface{}{
			"active":       false,
			"pause_reason": reason,
		}).Error
}

// RecordBotFailure increments the bot's consecutive failure counter and
// auto-pauses the bot once the threshold is reached, so a broken signal
// source cannot generate unbounded retry noise. Returns whether the bot was
// paused by this call.
func (s *Store) RecordBotFailure(botID uint, threshold int, reason string) (bool, error) {
	var bot models.BotConfig
	if err := s.db.First(&bot, botID).Error; err != nil {
		return false, fmt.Errorf("failed to load bot %d: %w", botID, err)
	}

	failures := bot.ConsecutiveFailures + 1
	updates := map[string]interface{}{"consecutive_failures": failures}
	paused := false
	if threshold > 0 && failures >= threshold && bot.Active {
		updates["active"] = false
		updates["pause_reason"] = fmt.Sprintf("auto-paused after %d consecutive failures: %s", failures, reason)
		paused = true
	}
	if err := s.db.Model(&models.BotConfig{}).Where("id = ?", botID).Updates(updates).Error; err != nil {
		return false, err
	}
	return paused, nil
}

// ResetBotFailures clears the consecutive failure counter after a success.
func (s *Store) ResetBotFailures(botID uint) error {
	return s.db.Model(&models.BotConfig{}).Where("id = ? AND consecutive_failures > 0", botID).
		Update("consecutive_failures", 0).Error
}

// GetIntent loads a trade intent by id.
func (s *Store) GetIntent(id uint) (*models.TradeIntent, error) {
	var intent models.TradeIntent
	if err := s.db.First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load intent %d: %w", id, err)
	}
	return &intent, nil
}

// CreateTradeRecord appends a trade record.
func (s *Store) CreateTradeRecord(rec *models.TradeRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save trade record: %w", err)
	}
	return nil
}

// ResolveTradeRecord updates the status and terminal fields of an existing
// trade record. Only these fields are ever touched after creation.
func (s *Store) ResolveTradeRecord(id uint, status string, fillPrice *float64, signature, errMsg string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
	}
	if signature != "" {
		updates["signature"] = signature
	}
	if fillPrice != nil {
		updates["fill_price"] = *fillPrice
	}
	return s.db.Model(&models.TradeRecord{}).Where("id = ?", id).Updates(updates).Error
}

// UnknownTrades lists trade records whose venue call timed out and whose true
// outcome is still unresolved.
func (s *Store) UnknownTrades(botID uint) ([]models.TradeRecord, error) {
	var recs []models.TradeRecord
	err := s.db.Where("bot_id = ? AND status = ?", botID, models.TradeStatusUnknown).
		Order("executed_at ASC").Find(&recs).Error
	return recs, err
}

// CreateOrphan records a venue resource left behind by a partially failed
// multi-step operation.
func (s *Store) CreateOrphan(o *models.OrphanedResource) error {
	if err := s.db.Create(o).Error; err != nil {
		return fmt.Errorf("failed to save orphaned resource: %w", err)
	}
	return nil
}

// OpenOrphans lists resources still awaiting cleanup.
func (s *Store) OpenOrphans() ([]models.OrphanedResource, error) {
	var rows []models.OrphanedResource
	err := s.db.Where("status = ?", "open").Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// MarkOrphanCleaned closes an orphaned resource record.
func (s *Store) MarkOrphanCleaned(id uint) error {
	return s.db.Model(&models.OrphanedResource{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": "cleaned", "updated_at": time.Now()}).Error
}

// ActiveBots lists bots with execution enabled, for the reconcile loop.
func (s *Store) ActiveBots() ([]models.BotConfig, error) {
	var bots []models.BotConfig
	err := s.db.Where("active = ? AND subaccount_status <> ''", true).Find(&bots).Error
	return bots, err
}

// CreateReconNote appends a reconciliation audit row.
func (s *Store) CreateReconNote(note *models.ReconciliationNote) error {
	return s.db.Create(note).Error
}
