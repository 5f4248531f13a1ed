package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"perpcontrol/internal/models"
)

// dustSize is the residual below which a position is treated as flat.
const dustSize = 1e-9

// GetSnapshot loads the position snapshot for (bot, market), or ErrNotFound.
func (s *Store) GetSnapshot(botID uint, market string) (*models.PositionSnapshot, error) {
	var snap models.PositionSnapshot
	err := s.db.Where("bot_id = ? AND market = ?", botID, market).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load position snapshot: %w", err)
	}
	return &snap, nil
}

// ApplyFill folds one executed trade into the (bot, market) snapshot.
// Opening or increasing updates cost basis and average entry; reducing
// realizes pnl against the average entry. Returns the realized pnl of this
// fill (zero unless reducing).
func (s *Store) ApplyFill(botID uint, market, side string, size, price float64, tradeID uint) (float64, error) {
	delta := size
	if side == models.DirectionShort {
		delta = -size
	}

	snap, err := s.GetSnapshot(botID, market)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		snap = &models.PositionSnapshot{BotID: botID, Market: market}
	}

	realized := 0.0
	oldSize := snap.BaseSize
	newSize := oldSize + delta

	switch {
	case oldSize == 0 || sameSign(oldSize, delta):
		// Opening or increasing.
		snap.CostBasis += math.Abs(delta) * price
		if math.Abs(newSize) > dustSize {
			snap.AvgEntryPrice = snap.CostBasis / math.Abs(newSize)
		}
	default:
		// Reducing. A venue-sized reduce-only close can never cross zero, so
		// the closed quantity is bounded by the open size.
		closed := math.Min(math.Abs(delta), math.Abs(oldSize))
		direction := 1.0
		if oldSize < 0 {
			direction = -1.0
		}
		realized = (price - snap.AvgEntryPrice) * closed * direction
		snap.RealizedPnl += realized
		snap.CostBasis -= closed * snap.AvgEntryPrice
		if snap.CostBasis < 0 {
			snap.CostBasis = 0
		}
	}

	if math.Abs(newSize) <= dustSize {
		newSize = 0
		snap.AvgEntryPrice = 0
		snap.CostBasis = 0
	}
	snap.BaseSize = newSize
	snap.LastTradeID = &tradeID

	if err := s.db.Save(snap).Error; err != nil {
		return 0, fmt.Errorf("failed to save position snapshot: %w", err)
	}
	return realized, nil
}

// OverwriteSnapshot replaces a snapshot with venue truth, guarded by an
// optimistic compare-and-swap on updated_at: if a trade landed between the
// reconciler's read and this write, the stale venue view is discarded.
// Returns false when the CAS lost.
func (s *Store) OverwriteSnapshot(snap *models.PositionSnapshot, seenUpdatedAt time.Time, baseSize, avgEntry float64) (bool, error) {
	res := s.db.Model(&models.PositionSnapshot{}).
		Where("id = ? AND updated_at = ?", snap.ID, seenUpdatedAt).
		Updates(map[string]interface{}{
			"base_size":       baseSize,
			"avg_entry_price": avgEntry,
			"cost_basis":      math.Abs(baseSize) * avgEntry,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to overwrite position snapshot: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreateSnapshot inserts a snapshot row for a position the venue reports but
// the local cache has never seen.
func (s *Store) CreateSnapshot(snap *models.PositionSnapshot) error {
	if err := s.db.Create(snap).Error; err != nil {
		return fmt.Errorf("failed to create position snapshot: %w", err)
	}
	return nil
}

// Snapshots lists all snapshots for a bot.
func (s *Store) Snapshots(botID uint) ([]models.PositionSnapshot, error) {
	var rows []models.PositionSnapshot
	err := s.db.Where("bot_id = ?", botID).Find(&rows).Error
	return rows, err
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
