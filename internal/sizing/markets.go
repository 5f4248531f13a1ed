package sizing

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"perpcontrol/internal/models"
)

// UnknownMarketError means the intent's symbol has no configured market
// mapping.
type UnknownMarketError struct {
	Symbol string
}

func (e *UnknownMarketError) Error() string {
	return fmt.Sprintf("no market configured for symbol %q", e.Symbol)
}

// MarketRegistry is the keyed lookup of venue perp markets, loaded from the
// market_config table and validated at load time. Adding a market is a data
// change, never a code change.
type MarketRegistry struct {
	mu       sync.RWMutex
	bySymbol map[string]models.MarketConfig
}

// LoadMarketRegistry reads active markets from the database and validates
// each row before accepting it.
func LoadMarketRegistry(db *gorm.DB) (*MarketRegistry, error) {
	var rows []models.MarketConfig
	if err := db.Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load market config: %w", err)
	}

	r := &MarketRegistry{bySymbol: make(map[string]models.MarketConfig, len(rows))}
	for _, m := range rows {
		if err := validateMarket(m); err != nil {
			return nil, fmt.Errorf("invalid market config %q: %w", m.Symbol, err)
		}
		if _, dup := r.bySymbol[m.Symbol]; dup {
			return nil, fmt.Errorf("duplicate market config for symbol %q", m.Symbol)
		}
		r.bySymbol[m.Symbol] = m
	}
	return r, nil
}

func validateMarket(m models.MarketConfig) error {
	if m.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if m.MarketIndex < 0 {
		return fmt.Errorf("negative market index")
	}
	if m.MaxLeverage < 1 {
		return fmt.Errorf("max leverage must be >= 1")
	}
	if m.MinOrderSize < 0 || m.TickSize < 0 {
		return fmt.Errorf("negative order constraints")
	}
	return nil
}

// Lookup returns the market for a signal symbol.
func (r *MarketRegistry) Lookup(symbol string) (models.MarketConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bySymbol[symbol]
	if !ok {
		return models.MarketConfig{}, &UnknownMarketError{Symbol: symbol}
	}
	return m, nil
}

// Symbols returns every registered market symbol.
func (r *MarketRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		symbols = append(symbols, s)
	}
	return symbols
}

// Reload replaces the registry contents, used when markets change at runtime.
func (r *MarketRegistry) Reload(db *gorm.DB) error {
	fresh, err := LoadMarketRegistry(db)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.bySymbol = fresh.bySymbol
	r.mu.Unlock()
	return nil
}

// NewStaticRegistry builds a registry from in-memory rows. Test seam and
// bootstrap helper.
func NewStaticRegistry(rows ...models.MarketConfig) (*MarketRegistry, error) {
	r := &MarketRegistry{bySymbol: make(map[string]models.MarketConfig, len(rows))}
	for _, m := range rows {
		if err := validateMarket(m); err != nil {
			return nil, fmt.Errorf("invalid market config %q: %w", m.Symbol, err)
		}
		r.bySymbol[m.Symbol] = m
	}
	return r, nil
}
