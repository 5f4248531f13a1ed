package executor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"perpcontrol/internal/models"
	"perpcontrol/internal/sizing"
	"perpcontrol/pkg/venue"
)

// closeDust is the venue position size below which a close request is a
// no-op success.
const closeDust = 1e-9

// VenueClient is the narrow command interface to the execution venue.
type VenueClient interface {
	InitializeSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error)
	Deposit(ctx context.Context, encryptedKey string, subaccountID uint16, amount float64) (*venue.OrderResult, error)
	PlaceOrder(ctx context.Context, encryptedKey string, req venue.OrderRequest) (*venue.OrderResult, error)
	SettlePnl(ctx context.Context, encryptedKey string, subaccountID uint16, marketIndex int) (*venue.OrderResult, error)
	DeleteSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error)
	GetSubaccount(ctx context.Context, authority string, subaccountID uint16) (*venue.SubaccountState, error)
}

// Store is the persistence surface the executor needs.
type Store interface {
	UpdateBotSubaccount(bot *models.BotConfig) error
	CreateTradeRecord(rec *models.TradeRecord) error
	ResolveTradeRecord(id uint, status string, fillPrice *float64, signature, errMsg string) error
	CreateOrphan(o *models.OrphanedResource) error
	ApplyFill(botID uint, market, side string, size, price float64, tradeID uint) (float64, error)
}

// Outcome is the structured result of one execution attempt.
type Outcome struct {
	Record *models.TradeRecord
	// Class is set when the attempt failed with a classified venue error.
	Class Classification
	// Unknown marks a timed-out attempt whose true result the reconciler
	// must determine. Not a failure and not a success.
	Unknown bool
	Err     error
}

// Executor drives venue commands for one trade at a time. Callers hold the
// per-bot lock for the duration of a call.
type Executor struct {
	venue   VenueClient
	store   Store
	markets *sizing.MarketRegistry
	prices  sizing.PriceSource
}

func New(v VenueClient, st Store, markets *sizing.MarketRegistry, prices sizing.PriceSource) *Executor {
	return &Executor{venue: v, store: st, markets: markets, prices: prices}
}

// MarketIndex resolves a symbol to its venue market index.
func (e *Executor) MarketIndex(symbol string) (int, error) {
	m, err := e.markets.Lookup(symbol)
	if err != nil {
		return 0, err
	}
	return m.MarketIndex, nil
}

// Equity returns the bot's available collateral for sizing. Before the lazy
// subaccount exists the pending initial deposit is the collateral.
func (e *Executor) Equity(ctx context.Context, bot *models.BotConfig) (float64, error) {
	if bot.SubaccountStatus != "funded" || bot.SubaccountID == nil {
		return bot.MaxPositionSize, nil
	}
	state, err := e.venue.GetSubaccount(ctx, bot.Authority, *bot.SubaccountID)
	if err != nil {
		return 0, err
	}
	return state.FreeCollateral, nil
}

// Execute runs one sized order against the venue and records the outcome.
// The returned Outcome always carries a trade record; its status tells the
// caller what happened.
func (e *Executor) Execute(ctx context.Context, bot *models.BotConfig, order *sizing.Order, intentID uint) *Outcome {
	rec := &models.TradeRecord{
		BotID:      bot.ID,
		IntentID:   intentID,
		Market:     order.Market,
		Side:       order.Side,
		Size:       order.BaseSize,
		Notional:   order.Notional,
		ReduceOnly: order.ReduceOnly,
		Status:     models.TradeStatusPending,
	}
	if err := e.store.CreateTradeRecord(rec); err != nil {
		return &Outcome{Record: rec, Class: ClassRetry, Err: err}
	}

	if err := e.ensureSubaccount(ctx, bot); err != nil {
		return e.fail(rec, err)
	}

	if order.ReduceOnly {
		return e.executeClose(ctx, bot, order, rec)
	}
	return e.executeOpen(ctx, bot, order, rec)
}

// ensureSubaccount lazily creates and funds the bot's venue subaccount. If
// initialization succeeds but the deposit fails, the now-existing unfunded
// subaccount is recorded as an orphaned resource instead of being lost.
func (e *Executor) ensureSubaccount(ctx context.Context, bot *models.BotConfig) error {
	if bot.SubaccountStatus == "funded" && bot.SubaccountID != nil {
		return nil
	}

	if bot.SubaccountStatus == "" {
		subID := uint16(0) // first subaccount under the bot's own authority
		if _, err := e.venue.InitializeSubaccount(ctx, bot.EncryptedKey, subID); err != nil {
			return fmt.Errorf("subaccount init: %w", err)
		}
		bot.SubaccountID = &subID
		bot.SubaccountStatus = "initialized"
		if err := e.store.UpdateBotSubaccount(bot); err != nil {
			return err
		}
		log.WithFields(log.Fields{"bot_id": bot.ID, "subaccount": subID}).Info("Initialized venue subaccount")
	}

	if _, err := e.venue.Deposit(ctx, bot.EncryptedKey, *bot.SubaccountID, bot.MaxPositionSize); err != nil {
		orphan := &models.OrphanedResource{
			BotID:        bot.ID,
			ResourceType: models.OrphanSubaccountUnfunded,
			SubaccountID: *bot.SubaccountID,
			Detail:       fmt.Sprintf("deposit of %.2f failed: %v", bot.MaxPositionSize, err),
		}
		if oerr := e.store.CreateOrphan(orphan); oerr != nil {
			log.WithField("bot_id", bot.ID).Errorf("Failed to record orphaned subaccount: %v", oerr)
		}
		return fmt.Errorf("subaccount deposit: %w", err)
	}
	bot.SubaccountStatus = "funded"
	return e.store.UpdateBotSubaccount(bot)
}

// executeClose places a reduce-only order sized to the venue's authoritative
// position, never the locally cached size, so a drifted cache cannot flip the
// position into the opposite direction.
func (e *Executor) executeClose(ctx context.Context, bot *models.BotConfig, order *sizing.Order, rec *models.TradeRecord) *Outcome {
	state, err := e.venue.GetSubaccount(ctx, bot.Authority, *bot.SubaccountID)
	if err != nil {
		return e.fail(rec, err)
	}

	var open *venue.Position
	for i := range state.Positions {
		if state.Positions[i].MarketIndex == order.MarketIndex {
			open = &state.Positions[i]
			break
		}
	}

	if open == nil || math.Abs(open.BaseSize) <= closeDust {
		// Nothing to close: a no-op success, not an error.
		if err := e.store.ResolveTradeRecord(rec.ID, models.TradeStatusExecuted, nil, "", ""); err != nil {
			log.WithField("trade_id", rec.ID).Errorf("Failed to resolve no-op close: %v", err)
		}
		rec.Status = models.TradeStatusExecuted
		rec.Size = 0
		return &Outcome{Record: rec}
	}

	closeSide := models.DirectionShort
	if open.BaseSize < 0 {
		closeSide = models.DirectionLong
	}
	req := venue.OrderRequest{
		SubaccountID:  *bot.SubaccountID,
		MarketIndex:   order.MarketIndex,
		Market:        order.Market,
		Direction:     closeSide,
		BaseSize:      math.Abs(open.BaseSize),
		ReduceOnly:    true,
		ExecutionPath: venue.PathAuction,
		ClientOrderID: uuid.NewString(),
	}
	rec.Side = closeSide
	rec.Size = req.BaseSize

	return e.placeWithFallback(ctx, bot, req, rec)
}

func (e *Executor) executeOpen(ctx context.Context, bot *models.BotConfig, order *sizing.Order, rec *models.TradeRecord) *Outcome {
	req := venue.OrderRequest{
		SubaccountID:  *bot.SubaccountID,
		MarketIndex:   order.MarketIndex,
		Market:        order.Market,
		Direction:     order.Side,
		BaseSize:      order.BaseSize,
		ReduceOnly:    false,
		ExecutionPath: venue.PathAuction,
		ClientOrderID: uuid.NewString(),
	}
	return e.placeWithFallback(ctx, bot, req, rec)
}

// placeWithFallback tries the auction path first and, when the venue reports
// a liquidity/auction failure, re-attempts once through the market path
// before giving up. A fallback re-attempt is not a retry-queue attempt.
func (e *Executor) placeWithFallback(ctx context.Context, bot *models.BotConfig, req venue.OrderRequest, rec *models.TradeRecord) *Outcome {
	res, err := e.venue.PlaceOrder(ctx, bot.EncryptedKey, req)
	if err == nil {
		return e.succeed(bot, rec, res)
	}

	var timeoutErr *venue.TimeoutError
	if errors.As(err, &timeoutErr) {
		return e.unknown(rec, err)
	}

	if Classify(err) == ClassFallback && req.ExecutionPath == venue.PathAuction {
		log.WithFields(log.Fields{
			"bot_id": bot.ID,
			"market": req.Market,
			"error":  err.Error(),
		}).Warn("Auction path failed, falling back to market path")

		req.ExecutionPath = venue.PathMarket
		req.ClientOrderID = uuid.NewString()
		res, err = e.venue.PlaceOrder(ctx, bot.EncryptedKey, req)
		if err == nil {
			return e.succeed(bot, rec, res)
		}
		if errors.As(err, &timeoutErr) {
			return e.unknown(rec, err)
		}
	}

	return e.fail(rec, err)
}

func (e *Executor) succeed(bot *models.BotConfig, rec *models.TradeRecord, res *venue.OrderResult) *Outcome {
	fillPrice := res.FillPrice
	if fillPrice == nil {
		if mark, err := e.prices.MarkPrice(rec.Market); err == nil {
			fillPrice = &mark
		}
	}
	if err := e.store.ResolveTradeRecord(rec.ID, models.TradeStatusExecuted, fillPrice, res.Signature, ""); err != nil {
		log.WithField("trade_id", rec.ID).Errorf("Failed to resolve trade record: %v", err)
	}
	rec.Status = models.TradeStatusExecuted
	rec.Signature = res.Signature
	rec.FillPrice = fillPrice

	if fillPrice != nil {
		realized, err := e.store.ApplyFill(bot.ID, rec.Market, rec.Side, rec.Size, *fillPrice, rec.ID)
		if err != nil {
			log.WithField("trade_id", rec.ID).Errorf("Failed to update position snapshot: %v", err)
		} else if rec.ReduceOnly {
			rec.RealizedPnl = &realized
		}
	}

	log.WithFields(log.Fields{
		"bot_id":    bot.ID,
		"market":    rec.Market,
		"side":      rec.Side,
		"size":      rec.Size,
		"signature": rec.Signature,
	}).Info("Trade executed")
	return &Outcome{Record: rec}
}

func (e *Executor) fail(rec *models.TradeRecord, err error) *Outcome {
	class := Classify(err)
	if rerr := e.store.ResolveTradeRecord(rec.ID, models.TradeStatusFailed, nil, "", err.Error()); rerr != nil {
		log.WithField("trade_id", rec.ID).Errorf("Failed to resolve trade record: %v", rerr)
	}
	rec.Status = models.TradeStatusFailed
	rec.ErrorMessage = err.Error()
	return &Outcome{Record: rec, Class: class, Err: err}
}

// unknown records a timed-out attempt. The order may have landed on the
// venue; the reconciler determines the true outcome.
func (e *Executor) unknown(rec *models.TradeRecord, err error) *Outcome {
	if rerr := e.store.ResolveTradeRecord(rec.ID, models.TradeStatusUnknown, nil, "", err.Error()); rerr != nil {
		log.WithField("trade_id", rec.ID).Errorf("Failed to resolve trade record: %v", rerr)
	}
	rec.Status = models.TradeStatusUnknown
	rec.ErrorMessage = err.Error()
	return &Outcome{Record: rec, Unknown: true, Err: err}
}

// Settle settles realized pnl for a bot's market.
func (e *Executor) Settle(ctx context.Context, bot *models.BotConfig, marketIndex int) error {
	if bot.SubaccountID == nil {
		return fmt.Errorf("bot %d has no subaccount", bot.ID)
	}
	_, err := e.venue.SettlePnl(ctx, bot.EncryptedKey, *bot.SubaccountID, marketIndex)
	return err
}

// DeleteSubaccount removes the bot's subaccount. Used by orphan cleanup once
// a subaccount is confirmed empty.
func (e *Executor) DeleteSubaccount(ctx context.Context, bot *models.BotConfig, subaccountID uint16) error {
	_, err := e.venue.DeleteSubaccount(ctx, bot.EncryptedKey, subaccountID)
	return err
}
