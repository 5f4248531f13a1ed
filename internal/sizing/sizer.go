package sizing

import (
	"fmt"

	"perpcontrol/internal/models"
)

// ZeroPriceError means no usable oracle price was available. Sizing fails
// closed rather than defaulting to a stale or zero price.
type ZeroPriceError struct {
	Symbol string
}

func (e *ZeroPriceError) Error() string {
	return fmt.Sprintf("no usable price for %q", e.Symbol)
}

// InsufficientCollateralError means the computed notional exceeds the bot's
// buying power.
type InsufficientCollateralError struct {
	Notional    float64
	BuyingPower float64
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("notional %.2f exceeds buying power %.2f", e.Notional, e.BuyingPower)
}

// RestrictedSideError means the bot's side restriction forbids the signal's
// direction.
type RestrictedSideError struct {
	Direction   string
	Restriction string
}

func (e *RestrictedSideError) Error() string {
	return fmt.Sprintf("bot is %s-only, rejecting %s signal", e.Restriction, e.Direction)
}

// PriceSource supplies the latest oracle/mark price for a market symbol.
type PriceSource interface {
	MarkPrice(symbol string) (float64, error)
}

// Order is a concrete, venue-ready order.
type Order struct {
	Market      string
	MarketIndex int
	Side        string // long / short
	BaseSize    float64
	Notional    float64
	ReduceOnly  bool
}

// Sizer converts a trade intent into a concrete order.
type Sizer struct {
	markets *MarketRegistry
	prices  PriceSource
}

func NewSizer(markets *MarketRegistry, prices PriceSource) *Sizer {
	return &Sizer{markets: markets, prices: prices}
}

// Size computes the order for an intent. The intent's numeric value is a
// percentage of the bot's configured maximum position size, not a dollar
// amount: 33 against a $300 cap opens $99 notional. Leverage is applied as
// buying power, capped at the market's venue-enforced maximum. A close
// intent skips size math entirely and emits a reduce-only full close; the
// executor sizes it to the venue's authoritative position.
func (s *Sizer) Size(intent *models.TradeIntent, bot *models.BotConfig, equity float64) (*Order, error) {
	market, err := s.markets.Lookup(intent.Symbol)
	if err != nil {
		return nil, err
	}

	if intent.Action == models.ActionClose || intent.Percent == 0 {
		return &Order{
			Market:      market.Symbol,
			MarketIndex: market.MarketIndex,
			Side:        intent.Direction,
			BaseSize:    0, // executor sizes the close from venue state
			ReduceOnly:  true,
		}, nil
	}

	if bot.SideRestriction != "" && bot.SideRestriction != "both" && bot.SideRestriction != intent.Direction {
		return nil, &RestrictedSideError{Direction: intent.Direction, Restriction: bot.SideRestriction}
	}

	price, err := s.prices.MarkPrice(market.Symbol)
	if err != nil || price <= 0 {
		return nil, &ZeroPriceError{Symbol: market.Symbol}
	}

	notional := intent.Percent / 100 * bot.MaxPositionSize

	leverage := bot.Leverage
	if leverage < 1 {
		leverage = 1
	}
	if leverage > market.MaxLeverage {
		leverage = market.MaxLeverage
	}
	buyingPower := equity * float64(leverage)
	if notional > buyingPower {
		return nil, &InsufficientCollateralError{Notional: notional, BuyingPower: buyingPower}
	}

	baseSize := notional / price
	if market.MinOrderSize > 0 && baseSize < market.MinOrderSize {
		// Flooring grows the order, so the buying power check must run again
		// on the floored notional.
		baseSize = market.MinOrderSize
		notional = baseSize * price
		if notional > buyingPower {
			return nil, &InsufficientCollateralError{Notional: notional, BuyingPower: buyingPower}
		}
	}

	return &Order{
		Market:      market.Symbol,
		MarketIndex: market.MarketIndex,
		Side:        intent.Direction,
		BaseSize:    baseSize,
		Notional:    notional,
		ReduceOnly:  false,
	}, nil
}
