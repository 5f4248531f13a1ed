package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpcontrol/internal/executor"
	"perpcontrol/internal/models"
	"perpcontrol/internal/signal"
	"perpcontrol/internal/sizing"
	"perpcontrol/internal/store"
	"perpcontrol/pkg/venue"
)

// In-memory collaborators narrow enough for webhook intake tests. Execution
// is dispatched through a publisher fake, so nothing runs asynchronously.

type webhookStore struct {
	mu      sync.Mutex
	bot     *models.BotConfig
	intents []*models.TradeIntent
}

func (f *webhookStore) GetBot(id uint) (*models.BotConfig, error) {
	if f.bot == nil || f.bot.ID != id {
		return nil, store.ErrNotFound
	}
	return f.bot, nil
}

func (f *webhookStore) GetIntent(id uint) (*models.TradeIntent, error) { return nil, store.ErrNotFound }

func (f *webhookStore) CreateIntent(intent *models.TradeIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent.ID = uint(len(f.intents) + 1)
	f.intents = append(f.intents, intent)
	return nil
}

func (f *webhookStore) CreateTradeRecord(rec *models.TradeRecord) error { return nil }

func (f *webhookStore) RecordBotFailure(botID uint, threshold int, reason string) (bool, error) {
	return false, nil
}

func (f *webhookStore) ResetBotFailures(botID uint) error { return nil }

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	st   *webhookStore
}

func (g *memGuard) RegisterIntent(intent *models.TradeIntent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[intent.SignalHash] {
		return &signal.DuplicateSignalError{Hash: intent.SignalHash}
	}
	g.seen[intent.SignalHash] = true
	return g.st.CreateIntent(intent)
}

type nullVenue struct{}

func (nullVenue) InitializeSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}
func (nullVenue) Deposit(ctx context.Context, encryptedKey string, subaccountID uint16, amount float64) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}
func (nullVenue) PlaceOrder(ctx context.Context, encryptedKey string, req venue.OrderRequest) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}
func (nullVenue) SettlePnl(ctx context.Context, encryptedKey string, subaccountID uint16, marketIndex int) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}
func (nullVenue) DeleteSubaccount(ctx context.Context, encryptedKey string, subaccountID uint16) (*venue.OrderResult, error) {
	return &venue.OrderResult{}, nil
}
func (nullVenue) GetSubaccount(ctx context.Context, authority string, subaccountID uint16) (*venue.SubaccountState, error) {
	return &venue.SubaccountState{}, nil
}

type nullExecStore struct{}

func (nullExecStore) UpdateBotSubaccount(bot *models.BotConfig) error  { return nil }
func (nullExecStore) CreateTradeRecord(rec *models.TradeRecord) error  { return nil }
func (nullExecStore) ResolveTradeRecord(id uint, status string, fillPrice *float64, signature, errMsg string) error {
	return nil
}
func (nullExecStore) CreateOrphan(o *models.OrphanedResource) error { return nil }
func (nullExecStore) ApplyFill(botID uint, market, side string, size, price float64, tradeID uint) (float64, error) {
	return 0, nil
}

type nullQueue struct{}

func (nullQueue) Enqueue(rec *models.TradeRecord, order sizing.Order, cause error) error { return nil }
func (nullQueue) EnqueueUnsized(rec *models.TradeRecord, intent *models.TradeIntent, cause error) error {
	return nil
}

type capturePublisher struct {
	mu   sync.Mutex
	jobs []interface{}
}

func (p *capturePublisher) Publish(queueName string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, message)
	return nil
}

type constPrice float64

func (p constPrice) MarkPrice(string) (float64, error) { return float64(p), nil }

func webhookRouter(t *testing.T, bot *models.BotConfig) (*gin.Engine, *webhookStore, *capturePublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := sizing.NewStaticRegistry(models.MarketConfig{
		Symbol:      "SOL-PERP",
		MarketIndex: 0,
		MaxLeverage: 20,
		Active:      true,
	})
	require.NoError(t, err)

	st := &webhookStore{bot: bot}
	exec := executor.New(nullVenue{}, nullExecStore{}, registry, constPrice(50))
	svc := executor.NewService(st, &memGuard{st: st}, sizing.NewSizer(registry, constPrice(50)), exec, executor.NewLockRegistry(), nullQueue{}, executor.LogNotifier{}, 3)
	pub := &capturePublisher{}
	svc = svc.WithPublisher(pub, "trade_execution")

	Setup(svc, nil, nil, registry, nil)

	r := gin.New()
	r.POST("/webhook/:bot_id", HandleWebhook)
	return r, st, pub
}

func webhookBot() *models.BotConfig {
	return &models.BotConfig{
		ID:               1,
		Market:           "SOL-PERP",
		Leverage:         5,
		MaxPositionSize:  300,
		Active:           true,
		ExecutionEnabled: true,
	}
}

func postWebhook(r *gin.Engine, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Signal-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook(t *testing.T) {
	const alert = `{"action":"buy","contracts":33,"symbol":"SOL-PERP"}`

	t.Run("Accepted Signal Is Queued", func(t *testing.T) {
		r, st, pub := webhookRouter(t, webhookBot())

		w := postWebhook(r, "/webhook/1", "", alert)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "queued", resp["status"])
		assert.Equal(t, "open", resp["action"])
		assert.Len(t, st.intents, 1)
		assert.Len(t, pub.jobs, 1)
	})

	t.Run("Duplicate Delivery Returns OK Without Requeueing", func(t *testing.T) {
		r, st, pub := webhookRouter(t, webhookBot())

		postWebhook(r, "/webhook/1", "", alert)
		w := postWebhook(r, "/webhook/1", "", alert)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "duplicate", resp["status"])
		assert.Len(t, st.intents, 1)
		assert.Len(t, pub.jobs, 1)
	})

	t.Run("Invalid Payload Is Bad Request", func(t *testing.T) {
		r, _, _ := webhookRouter(t, webhookBot())

		w := postWebhook(r, "/webhook/1", "", `{"action":"hold","contracts":1,"symbol":"SOL-PERP"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "action", resp["field"])
	})

	t.Run("Wrong Token Is Unauthorized", func(t *testing.T) {
		bot := webhookBot()
		bot.SignalToken = "secret"
		r, _, _ := webhookRouter(t, bot)

		w := postWebhook(r, "/webhook/1", "wrong", alert)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Token Via Query Parameter", func(t *testing.T) {
		bot := webhookBot()
		bot.SignalToken = "secret"
		r, _, _ := webhookRouter(t, bot)

		w := postWebhook(r, "/webhook/1?token=secret", "", alert)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Paused Bot Is Conflict", func(t *testing.T) {
		bot := webhookBot()
		bot.Active = false
		r, _, _ := webhookRouter(t, bot)

		w := postWebhook(r, "/webhook/1", "", alert)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Unknown Bot Is Not Found", func(t *testing.T) {
		r, _, _ := webhookRouter(t, webhookBot())

		w := postWebhook(r, "/webhook/99", "", alert)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Malformed Bot ID Is Bad Request", func(t *testing.T) {
		r, _, _ := webhookRouter(t, webhookBot())

		w := postWebhook(r, "/webhook/abc", "", alert)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
