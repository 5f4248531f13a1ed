package reconcile

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"perpcontrol/internal/models"
)

// CleanupStore is the persistence surface of the orphan sweep.
type CleanupStore interface {
	OpenOrphans() ([]models.OrphanedResource, error)
	MarkOrphanCleaned(id uint) error
	GetBot(id uint) (*models.BotConfig, error)
}

// SubaccountAdmin deletes venue subaccounts confirmed empty.
type SubaccountAdmin interface {
	DeleteSubaccount(ctx context.Context, bot *models.BotConfig, subaccountID uint16) error
}

// Cleaner sweeps orphaned venue resources: subaccounts created but never
// funded, or funded but abandoned. Empty subaccounts are deleted to reclaim
// their rent; anything holding funds or positions is left for the regular
// reconcile pass and kept on the books.
type Cleaner struct {
	store CleanupStore
	venue VenueReader
	admin SubaccountAdmin
	dust  float64
}

func NewCleaner(store CleanupStore, v VenueReader, admin SubaccountAdmin, dust float64) *Cleaner {
	if dust <= 0 {
		dust = 1e-6
	}
	return &Cleaner{store: store, venue: v, admin: admin, dust: dust}
}

// Sweep processes open orphan records. Run on an interval by the worker.
func (c *Cleaner) Sweep(ctx context.Context) {
	orphans, err := c.store.OpenOrphans()
	if err != nil {
		log.Errorf("Failed to list orphaned resources: %v", err)
		return
	}

	for _, o := range orphans {
		if ctx.Err() != nil {
			return
		}
		c.process(ctx, o)
	}
}

func (c *Cleaner) process(ctx context.Context, o models.OrphanedResource) {
	bot, err := c.store.GetBot(o.BotID)
	if err != nil {
		log.WithField("orphan_id", o.ID).Errorf("Failed to load bot for orphan: %v", err)
		return
	}

	state, err := c.venue.GetSubaccount(ctx, bot.Authority, o.SubaccountID)
	if err != nil {
		log.WithField("orphan_id", o.ID).Warnf("Failed to fetch orphaned subaccount, will re-check: %v", err)
		return
	}

	for _, p := range state.Positions {
		if math.Abs(p.BaseSize) > c.dust {
			// An orphan with an open position is not an orphan any more.
			log.WithFields(log.Fields{"orphan_id": o.ID, "market": p.Market}).Info("Orphaned subaccount has a position, closing record")
			c.markCleaned(o.ID)
			return
		}
	}

	if state.Equity > c.dust {
		// Funded after all; the bot can use it. Close the record.
		c.markCleaned(o.ID)
		return
	}

	if err := c.admin.DeleteSubaccount(ctx, bot, o.SubaccountID); err != nil {
		log.WithField("orphan_id", o.ID).Warnf("Failed to delete orphaned subaccount, will re-try: %v", err)
		return
	}
	log.WithFields(log.Fields{
		"orphan_id":  o.ID,
		"bot_id":     o.BotID,
		"subaccount": o.SubaccountID,
	}).Info("Deleted orphaned subaccount")
	c.markCleaned(o.ID)
}

func (c *Cleaner) markCleaned(id uint) {
	if err := c.store.MarkOrphanCleaned(id); err != nil {
		log.WithField("orphan_id", id).Errorf("Failed to mark orphan cleaned: %v", err)
	}
}
