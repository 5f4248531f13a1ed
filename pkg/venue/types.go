package venue

import (
	"fmt"
)

// Position is one perp position as reported by the venue.
type Position struct {
	Market      string  `json:"market"`
	MarketIndex int     `json:"market_index"`
	BaseSize    float64 `json:"base_size"` // signed, negative = short
	QuoteEntry  float64 `json:"quote_entry"`
	AvgEntry    float64 `json:"avg_entry"`
	UnrealPnl   float64 `json:"unrealized_pnl"`
}

// SubaccountState is the venue-authoritative view of one subaccount.
type SubaccountState struct {
	SubaccountID   uint16     `json:"subaccount_id"`
	Equity         float64    `json:"equity"`
	FreeCollateral float64    `json:"free_collateral"`
	Positions      []Position `json:"positions"`
}

// Execution paths for order placement. The default path routes through the
// venue's auction flow; the market path is the fallback when the auction has
// no liquidity.
const (
	PathAuction = "auction"
	PathMarket  = "market"
)

// OrderRequest is one order command against a subaccount.
type OrderRequest struct {
	SubaccountID  uint16  `json:"subaccount_id"`
	MarketIndex   int     `json:"market_index"`
	Market        string  `json:"market"`
	Direction     string  `json:"direction"` // long / short
	BaseSize      float64 `json:"base_size"`
	ReduceOnly    bool    `json:"reduce_only"`
	ExecutionPath string  `json:"execution_path"`
	ClientOrderID string  `json:"client_order_id"`
}

// OrderResult is the structured outcome of a venue command.
type OrderResult struct {
	Signature string   `json:"tx_signature"`
	FillPrice *float64 `json:"fill_price,omitempty"` // best effort, may be nil
}

// TimeoutError marks a venue call that hit the adapter's bounded wait. The
// outcome is ambiguous: the venue may still have executed the order.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("venue call %s timed out", e.Op)
}

// APIError is a structured error returned by the venue gateway.
type APIError struct {
	Op      string `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("venue %s failed: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("venue %s failed: %s", e.Op, e.Message)
}
