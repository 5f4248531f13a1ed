// Package reconcile keeps the local position cache honest against the
// venue's authoritative state. Venue truth always wins: drift beyond the
// dust tolerance is overwritten, never "explained" by replaying history.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"perpcontrol/internal/models"
	"perpcontrol/pkg/venue"
)

// VenueReader fetches venue-authoritative subaccount state.
type VenueReader interface {
	GetSubaccount(ctx context.Context, authority string, subaccountID uint16) (*venue.SubaccountState, error)
}

// Confirmer checks a venue transaction signature on-chain.
type Confirmer interface {
	CheckSignatureStatus(ctx context.Context, signature string) (string, error)
}

// Store is the persistence surface of the reconciler.
type Store interface {
	ActiveBots() ([]models.BotConfig, error)
	Snapshots(botID uint) ([]models.PositionSnapshot, error)
	OverwriteSnapshot(snap *models.PositionSnapshot, seenUpdatedAt time.Time, baseSize, avgEntry float64) (bool, error)
	CreateSnapshot(snap *models.PositionSnapshot) error
	CreateReconNote(note *models.ReconciliationNote) error
	UnknownTrades(botID uint) ([]models.TradeRecord, error)
	ResolveTradeRecord(id uint, status string, fillPrice *float64, signature, errMsg string) error
	ApplyFill(botID uint, market, side string, size, price float64, tradeID uint) (float64, error)
}

// Reconciler compares local snapshots to venue state and corrects drift.
type Reconciler struct {
	venue   VenueReader
	confirm Confirmer
	store   Store
	// dust is the residual position size ignored as noise.
	dust float64
}

func New(v VenueReader, confirm Confirmer, st Store, dust float64) *Reconciler {
	if dust <= 0 {
		dust = 1e-6
	}
	return &Reconciler{venue: v, confirm: confirm, store: st, dust: dust}
}

// ReconcileAll reconciles every active bot with a venue subaccount. The
// worker runs this on an interval.
func (r *Reconciler) ReconcileAll(ctx context.Context) {
	bots, err := r.store.ActiveBots()
	if err != nil {
		log.Errorf("Failed to list bots for reconciliation: %v", err)
		return
	}
	for i := range bots {
		if ctx.Err() != nil {
			return
		}
		if err := r.Reconcile(ctx, &bots[i]); err != nil {
			log.WithField("bot_id", bots[i].ID).Errorf("Reconciliation failed: %v", err)
		}
	}
}

// Reconcile fetches venue truth for one bot and corrects the local cache.
// Safe to run concurrently with an in-flight trade: snapshot overwrites are
// compare-and-swapped on the updated_at the reconciler read, so a trade that
// lands mid-pass invalidates the stale venue view instead of being
// clobbered by it.
func (r *Reconciler) Reconcile(ctx context.Context, bot *models.BotConfig) error {
	if bot.SubaccountID == nil || bot.SubaccountStatus == "" {
		return nil // nothing on the venue yet
	}

	// Read local state first, then venue state. Any trade completing after
	// the local read bumps updated_at and defeats the CAS below.
	snapshots, err := r.store.Snapshots(bot.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}
	localByMarket := make(map[string]models.PositionSnapshot, len(snapshots))
	for _, s := range snapshots {
		localByMarket[s.Market] = s
	}

	state, err := r.venue.GetSubaccount(ctx, bot.Authority, *bot.SubaccountID)
	if err != nil {
		return fmt.Errorf("failed to fetch venue state: %w", err)
	}
	venueByMarket := make(map[string]venue.Position, len(state.Positions))
	for _, p := range state.Positions {
		venueByMarket[p.Market] = p
	}

	r.resolveUnknownTrades(ctx, bot, localByMarket, venueByMarket)

	// Venue positions the cache disagrees with, or has never seen.
	for market, vp := range venueByMarket {
		local, ok := localByMarket[market]
		if !ok {
			if math.Abs(vp.BaseSize) <= r.dust {
				continue
			}
			snap := &models.PositionSnapshot{
				BotID:         bot.ID,
				Market:        market,
				BaseSize:      vp.BaseSize,
				AvgEntryPrice: vp.AvgEntry,
				CostBasis:     math.Abs(vp.BaseSize) * vp.AvgEntry,
			}
			if err := r.store.CreateSnapshot(snap); err != nil {
				return err
			}
			r.note(bot.ID, market, 0, vp.BaseSize, "venue position missing locally")
			continue
		}
		if math.Abs(local.BaseSize-vp.BaseSize) <= r.dust {
			continue
		}
		r.correct(bot.ID, &local, vp.BaseSize, vp.AvgEntry, "local size drifted from venue")
	}

	// Local positions the venue no longer reports: flat on the venue.
	for market, local := range localByMarket {
		if _, ok := venueByMarket[market]; ok {
			continue
		}
		if math.Abs(local.BaseSize) <= r.dust {
			continue
		}
		r.correct(bot.ID, &local, 0, 0, "venue reports no position")
	}

	return nil
}

func (r *Reconciler) correct(botID uint, local *models.PositionSnapshot, venueSize, venueAvgEntry float64, detail string) {
	applied, err := r.store.OverwriteSnapshot(local, local.UpdatedAt, venueSize, venueAvgEntry)
	if err != nil {
		log.WithFields(log.Fields{"bot_id": botID, "market": local.Market}).Errorf("Failed to overwrite snapshot: %v", err)
		return
	}
	if !applied {
		// A trade updated the snapshot after our read; this venue view is
		// stale. The next pass sees the fresh state.
		log.WithFields(log.Fields{"bot_id": botID, "market": local.Market}).Debug("Snapshot changed mid-reconcile, skipping")
		return
	}
	r.note(botID, local.Market, local.BaseSize, venueSize, detail)
	log.WithFields(log.Fields{
		"bot_id":     botID,
		"market":     local.Market,
		"local_size": local.BaseSize,
		"venue_size": venueSize,
	}).Warn("Position snapshot corrected from venue truth")
}

func (r *Reconciler) note(botID uint, market string, localSize, venueSize float64, detail string) {
	n := &models.ReconciliationNote{
		BotID:     botID,
		Market:    market,
		LocalSize: localSize,
		VenueSize: venueSize,
		Delta:     venueSize - localSize,
		Detail:    detail,
	}
	if err := r.store.CreateReconNote(n); err != nil {
		log.WithField("bot_id", botID).Errorf("Failed to record reconciliation note: %v", err)
	}
}

// resolveUnknownTrades settles trade records whose venue call timed out.
// A record carrying a signature is confirmed on-chain. A record without one
// is judged by position evidence: if the venue position differs from the
// local snapshot by the trade's size in the trade's direction, the order
// landed.
func (r *Reconciler) resolveUnknownTrades(ctx context.Context, bot *models.BotConfig, local map[string]models.PositionSnapshot, venuePos map[string]venue.Position) {
	unknowns, err := r.store.UnknownTrades(bot.ID)
	if err != nil {
		log.WithField("bot_id", bot.ID).Errorf("Failed to list unknown trades: %v", err)
		return
	}

	for _, rec := range unknowns {
		if rec.Signature != "" && r.confirm != nil {
			r.resolveBySignature(ctx, bot, rec)
			continue
		}

		localSize := local[rec.Market].BaseSize
		venueSize := venuePos[rec.Market].BaseSize
		expected := rec.Size
		if rec.Side == models.DirectionShort {
			expected = -rec.Size
		}

		if math.Abs((venueSize-localSize)-expected) <= r.dust {
			// The order landed. Fold it into the snapshot so the drift pass
			// below does not treat its effect as unexplained.
			price := venuePos[rec.Market].AvgEntry
			if _, err := r.store.ApplyFill(bot.ID, rec.Market, rec.Side, rec.Size, price, rec.ID); err != nil {
				log.WithField("trade_id", rec.ID).Errorf("Failed to apply resolved fill: %v", err)
			}
			r.resolve(bot, rec, models.TradeStatusExecuted, "resolved by reconciler: venue position reflects trade")
		} else {
			r.resolve(bot, rec, models.TradeStatusFailed, "resolved by reconciler: venue position unchanged")
		}
	}
}

func (r *Reconciler) resolveBySignature(ctx context.Context, bot *models.BotConfig, rec models.TradeRecord) {
	status, err := r.confirm.CheckSignatureStatus(ctx, rec.Signature)
	if err != nil && status != venue.TxFailed {
		log.WithField("trade_id", rec.ID).Warnf("Signature check failed, leaving unknown: %v", err)
		return
	}
	switch status {
	case venue.TxConfirmed:
		r.resolve(bot, rec, models.TradeStatusExecuted, "resolved by reconciler: transaction confirmed")
	case venue.TxFailed, venue.TxNotFound:
		r.resolve(bot, rec, models.TradeStatusFailed, "resolved by reconciler: transaction "+status)
	default:
		// Still pending on-chain; check again next pass.
	}
}

func (r *Reconciler) resolve(bot *models.BotConfig, rec models.TradeRecord, status, detail string) {
	if err := r.store.ResolveTradeRecord(rec.ID, status, rec.FillPrice, rec.Signature, detail); err != nil {
		log.WithField("trade_id", rec.ID).Errorf("Failed to resolve unknown trade: %v", err)
		return
	}
	log.WithFields(log.Fields{
		"bot_id":   bot.ID,
		"trade_id": rec.ID,
		"status":   status,
	}).Info("Resolved ambiguous trade outcome")
}
