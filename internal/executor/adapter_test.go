package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpcontrol/internal/models"
	"perpcontrol/internal/sizing"
	"perpcontrol/pkg/venue"
)

// fakeVenue scripts venue responses per call.
type fakeVenue struct {
	mu sync.Mutex

	initErr    error
	depositErr error
	subState   *venue.SubaccountState
	subErr     error

	// placeResults is consumed in order, one per PlaceOrder call.
	placeResults []placeResult
	placed       []venue.OrderRequest

	initCalls    int
	depositCalls int
	deposited    float64
}

type placeResult struct {
	res *venue.OrderResult
	err error
}

func (f *fakeVenue) InitializeSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &venue.OrderResult{Signature: "init-sig"}, nil
}

func (f *fakeVenue) Deposit(ctx context.Context, encryptedKey string, subaccountID uint16, amount float64) (*venue.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depositCalls++
	f.deposited = amount
	if f.depositErr != nil {
		return nil, f.depositErr
	}
	return &venue.OrderResult{Signature: "deposit-sig"}, nil
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, encryptedKey string, req venue.OrderRequest) (*venue.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if len(f.placeResults) == 0 {
		return &venue.OrderResult{Signature: "sig"}, nil
	}
	r := f.placeResults[0]
	f.placeResults = f.placeResults[1:]
	return r.res, r.err
}

func (f *fakeVenue) SettlePnl(ctx context.Context, encryptedKey string, subaccountID uint16, marketIndex int) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}

func (f *fakeVenue) DeleteSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}

func (f *fakeVenue) GetSubaccount(ctx context.Context, authority string, subaccountID uint16) (*venue.SubaccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	if f.subState != nil {
		return f.subState, nil
	}
	return &venue.SubaccountState{SubaccountID: subaccountID}, nil
}

// fakeExecStore records executor persistence calls in memory.
type fakeExecStore struct {
	mu sync.Mutex

	records  []*models.TradeRecord
	resolved map[uint]string // record id -> final status
	errors   map[uint]string // record id -> error message
	orphans  []*models.OrphanedResource
	fills    []appliedFill
	bots     map[uint]*models.BotConfig
}

type appliedFill struct {
	botID uint
	side  string
	size  float64
	price float64
}

func newFakeExecStore() *fakeExecStore {
	return &fakeExecStore{
		resolved: make(map[uint]string),
		errors:   make(map[uint]string),
		bots:     make(map[uint]*models.BotConfig),
	}
}

func (f *fakeExecStore) UpdateBotSubaccount(bot *models.BotConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots[bot.ID] = bot
	return nil
}

func (f *fakeExecStore) CreateTradeRecord(rec *models.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = uint(len(f.records) + 1)
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeExecStore) ResolveTradeRecord(id uint, status string, fillPrice *float64, signature, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[id] = status
	f.errors[id] = errMsg
	return nil
}

func (f *fakeExecStore) CreateOrphan(o *models.OrphanedResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans = append(f.orphans, o)
	return nil
}

func (f *fakeExecStore) ApplyFill(botID uint, market, side string, size, price float64, tradeID uint) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, appliedFill{botID: botID, side: side, size: size, price: price})
	return 0, nil
}

func execTestRegistry(t *testing.T) *sizing.MarketRegistry {
	t.Helper()
	r, err := sizing.NewStaticRegistry(models.MarketConfig{
		Symbol:      "SOL-PERP",
		MarketIndex: 0,
		MaxLeverage: 20,
		Active:      true,
	})
	require.NoError(t, err)
	return r
}

type staticPrice float64

func (p staticPrice) MarkPrice(string) (float64, error) {
	return float64(p), nil
}

func fundedBot() *models.BotConfig {
	sub := uint16(0)
	return &models.BotConfig{
		ID:               1,
		Market:           "SOL-PERP",
		Leverage:         5,
		MaxPositionSize:  300,
		Active:           true,
		ExecutionEnabled: true,
		Authority:        "authority-pubkey",
		SubaccountID:     &sub,
		SubaccountStatus: "funded",
	}
}

func openOrder() *sizing.Order {
	return &sizing.Order{
		Market:      "SOL-PERP",
		MarketIndex: 0,
		Side:        models.DirectionLong,
		BaseSize:    1.98,
		Notional:    99,
	}
}

func TestExecutorExecute(t *testing.T) {
	t.Run("Open Success Updates Record And Position", func(t *testing.T) {
		fill := 50.0
		v := &fakeVenue{placeResults: []placeResult{{res: &venue.OrderResult{Signature: "abc", FillPrice: &fill}}}}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		out := e.Execute(context.Background(), fundedBot(), openOrder(), 10)
		require.NoError(t, out.Err)
		assert.Equal(t, models.TradeStatusExecuted, out.Record.Status)
		assert.Equal(t, "abc", out.Record.Signature)
		assert.Equal(t, models.TradeStatusExecuted, st.resolved[out.Record.ID])
		require.Len(t, st.fills, 1)
		assert.Equal(t, 1.98, st.fills[0].size)
		require.Len(t, v.placed, 1)
		assert.Equal(t, venue.PathAuction, v.placed[0].ExecutionPath)
	})

	t.Run("Timeout Leaves Outcome Unknown", func(t *testing.T) {
		v := &fakeVenue{placeResults: []placeResult{{err: &venue.TimeoutError{Op: "place_order"}}}}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		out := e.Execute(context.Background(), fundedBot(), openOrder(), 10)
		assert.True(t, out.Unknown)
		assert.Equal(t, models.TradeStatusUnknown, out.Record.Status)
		assert.Equal(t, models.TradeStatusUnknown, st.resolved[out.Record.ID])
		// No second attempt: a timed-out order may have landed.
		assert.Len(t, v.placed, 1)
		assert.Empty(t, st.fills)
	})

	t.Run("Auction Failure Falls Back To Market Path", func(t *testing.T) {
		v := &fakeVenue{placeResults: []placeResult{
			{err: errors.New("auction failed: insufficient liquidity")},
			{res: &venue.OrderResult{Signature: "market-sig"}},
		}}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		out := e.Execute(context.Background(), fundedBot(), openOrder(), 10)
		require.NoError(t, out.Err)
		require.Len(t, v.placed, 2)
		assert.Equal(t, venue.PathAuction, v.placed[0].ExecutionPath)
		assert.Equal(t, venue.PathMarket, v.placed[1].ExecutionPath)
		assert.NotEqual(t, v.placed[0].ClientOrderID, v.placed[1].ClientOrderID)
		assert.Equal(t, "market-sig", out.Record.Signature)
	})

	t.Run("Permanent Error Fails Without Fallback", func(t *testing.T) {
		v := &fakeVenue{placeResults: []placeResult{{err: errors.New("insufficient collateral")}}}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		out := e.Execute(context.Background(), fundedBot(), openOrder(), 10)
		require.Error(t, out.Err)
		assert.Equal(t, ClassPermanent, out.Class)
		assert.Equal(t, models.TradeStatusFailed, out.Record.Status)
		assert.Len(t, v.placed, 1)
	})

	t.Run("Close Sized From Venue Position", func(t *testing.T) {
		v := &fakeVenue{
			subState: &venue.SubaccountState{
				Positions: []venue.Position{{Market: "SOL-PERP", MarketIndex: 0, BaseSize: 2.5, AvgEntry: 48}},
			},
		}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		order := &sizing.Order{Market: "SOL-PERP", MarketIndex: 0, Side: models.DirectionLong, ReduceOnly: true}
		out := e.Execute(context.Background(), fundedBot(), order, 10)
		require.NoError(t, out.Err)
		require.Len(t, v.placed, 1)
		assert.Equal(t, models.DirectionShort, v.placed[0].Direction)
		assert.Equal(t, 2.5, v.placed[0].BaseSize)
		assert.True(t, v.placed[0].ReduceOnly)
	})

	t.Run("Close With No Position Is No Op Success", func(t *testing.T) {
		v := &fakeVenue{subState: &venue.SubaccountState{}}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		order := &sizing.Order{Market: "SOL-PERP", MarketIndex: 0, Side: models.DirectionLong, ReduceOnly: true}
		out := e.Execute(context.Background(), fundedBot(), order, 10)
		require.NoError(t, out.Err)
		assert.Equal(t, models.TradeStatusExecuted, out.Record.Status)
		assert.Zero(t, out.Record.Size)
		assert.Empty(t, v.placed)
	})

	t.Run("Lazy Subaccount Created And Funded On First Trade", func(t *testing.T) {
		v := &fakeVenue{}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		bot := fundedBot()
		bot.SubaccountID = nil
		bot.SubaccountStatus = ""

		out := e.Execute(context.Background(), bot, openOrder(), 10)
		require.NoError(t, out.Err)
		assert.Equal(t, 1, v.initCalls)
		assert.Equal(t, 1, v.depositCalls)
		assert.Equal(t, 300.0, v.deposited)
		assert.Equal(t, "funded", bot.SubaccountStatus)
		require.NotNil(t, bot.SubaccountID)
		assert.Equal(t, uint16(0), *bot.SubaccountID)
	})

	t.Run("Deposit Failure Records Orphaned Subaccount", func(t *testing.T) {
		v := &fakeVenue{depositErr: errors.New("insufficient funds in wallet")}
		st := newFakeExecStore()
		e := New(v, st, execTestRegistry(t), staticPrice(50))

		bot := fundedBot()
		bot.SubaccountID = nil
		bot.SubaccountStatus = ""

		out := e.Execute(context.Background(), bot, openOrder(), 10)
		require.Error(t, out.Err)
		assert.Equal(t, "initialized", bot.SubaccountStatus)
		require.Len(t, st.orphans, 1)
		assert.Equal(t, models.OrphanSubaccountUnfunded, st.orphans[0].ResourceType)
		assert.Empty(t, v.placed)
	})
}

func TestExecutorEquity(t *testing.T) {
	t.Run("Before Funding Equity Is The Pending Deposit", func(t *testing.T) {
		e := New(&fakeVenue{}, newFakeExecStore(), execTestRegistry(t), staticPrice(50))
		bot := fundedBot()
		bot.SubaccountID = nil
		bot.SubaccountStatus = ""

		equity, err := e.Equity(context.Background(), bot)
		require.NoError(t, err)
		assert.Equal(t, 300.0, equity)
	})

	t.Run("Funded Bot Uses Venue Free Collateral", func(t *testing.T) {
		v := &fakeVenue{subState: &venue.SubaccountState{FreeCollateral: 212.5}}
		e := New(v, newFakeExecStore(), execTestRegistry(t), staticPrice(50))

		equity, err := e.Equity(context.Background(), fundedBot())
		require.NoError(t, err)
		assert.Equal(t, 212.5, equity)
	})
}
