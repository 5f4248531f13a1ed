// Package retryqueue persists failed trade attempts and re-drives them with
// bounded exponential backoff. Queue state lives in Postgres, so a process
// restart never loses a pending trade, and entries are claimed atomically so
// concurrent sweeps cannot double-process.
package retryqueue

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"perpcontrol/internal/executor"
	"perpcontrol/internal/models"
	"perpcontrol/internal/sizing"
)

// Store is the persistence surface of the queue.
type Store interface {
	CreateRetry(entry *models.RetryEntry) error
	ClaimDueRetries(now time.Time, limit int) ([]models.RetryEntry, error)
	RescheduleRetry(id uint, attempt int, nextRetryAt time.Time, lastError string) error
	FinishRetry(id uint, status, lastError string) error
	GetBot(id uint) (*models.BotConfig, error)
	GetIntent(id uint) (*models.TradeIntent, error)
	RecordBotFailure(botID uint, threshold int, reason string) (bool, error)
	ResetBotFailures(botID uint) error
}

// Config bounds the queue's behavior.
type Config struct {
	BaseDelay        time.Duration // backoff base, default 30s
	MaxDelay         time.Duration // backoff cap, default 15m
	MaxAttempts      int           // default 5
	SweepBatch       int           // entries claimed per sweep, default 20
	FailureThreshold int           // consecutive failures before auto-pause
}

func (c *Config) withDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 20
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
}

// Queue is the persistent retry queue.
type Queue struct {
	store    Store
	exec     *executor.Executor
	sizer    *sizing.Sizer
	locks    *executor.LockRegistry
	notifier executor.Notifier
	cfg      Config
	now      func() time.Time // test seam
}

// New builds the queue. The lock registry must be the same instance the
// execution service uses, so a retry never runs an order for a bot whose
// fresh intent is mid-flight.
func New(store Store, exec *executor.Executor, sizer *sizing.Sizer, locks *executor.LockRegistry, notifier executor.Notifier, cfg Config) *Queue {
	cfg.withDefaults()
	if locks == nil {
		locks = executor.NewLockRegistry()
	}
	return &Queue{
		store:    store,
		exec:     exec,
		sizer:    sizer,
		locks:    locks,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Backoff returns the delay before the given attempt is retried:
// base × 2^attempt, capped. Strictly increasing in attempt until the cap.
func (q *Queue) Backoff(attempt int) time.Duration {
	d := q.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= q.cfg.MaxDelay {
			return q.cfg.MaxDelay
		}
	}
	return d
}

// Enqueue persists a failed attempt for deferred re-execution. Satisfies
// executor.RetryEnqueuer.
func (q *Queue) Enqueue(rec *models.TradeRecord, order sizing.Order, cause error) error {
	entry := &models.RetryEntry{
		TradeRecordID: rec.ID,
		IntentID:      rec.IntentID,
		BotID:         rec.BotID,
		Market:        order.Market,
		Side:          rec.Side,
		Size:          rec.Size,
		ReduceOnly:    order.ReduceOnly,
		Attempt:       1,
		MaxAttempts:   q.cfg.MaxAttempts,
		NextRetryAt:   q.now().Add(q.Backoff(1)),
		LastError:     cause.Error(),
		Status:        models.RetryStatusPending,
	}
	if err := q.store.CreateRetry(entry); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bot_id":        entry.BotID,
		"trade_id":      entry.TradeRecordID,
		"next_retry_at": entry.NextRetryAt,
	}).Info("Queued trade for retry")
	return nil
}

// EnqueueUnsized persists a retry for an intent that never reached sizing,
// e.g. the equity fetch failed. The sweep sizes it from fresh venue state.
// Satisfies executor.RetryEnqueuer.
func (q *Queue) EnqueueUnsized(rec *models.TradeRecord, intent *models.TradeIntent, cause error) error {
	entry := &models.RetryEntry{
		TradeRecordID: rec.ID,
		IntentID:      intent.ID,
		BotID:         rec.BotID,
		Market:        intent.Symbol,
		Side:          intent.Direction,
		Unsized:       true,
		Attempt:       1,
		MaxAttempts:   q.cfg.MaxAttempts,
		NextRetryAt:   q.now().Add(q.Backoff(1)),
		LastError:     cause.Error(),
		Status:        models.RetryStatusPending,
	}
	if err := q.store.CreateRetry(entry); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bot_id":        entry.BotID,
		"intent_id":     entry.IntentID,
		"next_retry_at": entry.NextRetryAt,
	}).Info("Queued unsized trade for retry")
	return nil
}

// Sweep claims due entries and re-attempts them. Run on an interval by the
// worker; safe to run concurrently with another sweep process because claims
// are conditional updates.
func (q *Queue) Sweep(ctx context.Context) error {
	entries, err := q.store.ClaimDueRetries(q.now(), q.cfg.SweepBatch)
	if err != nil {
		return fmt.Errorf("failed to claim due retries: %w", err)
	}

	for i := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.process(ctx, &entries[i])
	}
	return nil
}

func (q *Queue) process(ctx context.Context, entry *models.RetryEntry) {
	bot, err := q.store.GetBot(entry.BotID)
	if err != nil {
		log.WithField("entry_id", entry.ID).Errorf("Failed to load bot for retry: %v", err)
		q.reschedule(entry, err.Error())
		return
	}
	if !bot.Active {
		// The bot was paused after this entry was queued; stop retrying.
		if err := q.store.FinishRetry(entry.ID, models.RetryStatusExhausted, "bot paused"); err != nil {
			log.WithField("entry_id", entry.ID).Errorf("Failed to finish retry: %v", err)
		}
		return
	}

	// Same per-bot lock as fresh intents: a retry must not place an order
	// while the consumer is mid-execution on this bot's subaccount.
	release, err := q.locks.Acquire(ctx, bot.ID)
	if err != nil {
		// Context ended while waiting; return the entry to pending without
		// consuming an attempt.
		if rerr := q.store.RescheduleRetry(entry.ID, entry.Attempt, q.now().Add(q.Backoff(entry.Attempt)), err.Error()); rerr != nil {
			log.WithField("entry_id", entry.ID).Errorf("Failed to reschedule retry: %v", rerr)
		}
		return
	}
	defer release()

	order := sizing.Order{
		Market:     entry.Market,
		Side:       entry.Side,
		BaseSize:   entry.Size,
		ReduceOnly: entry.ReduceOnly,
	}
	if entry.Unsized {
		sized, ok := q.sizeEntry(ctx, bot, entry)
		if !ok {
			return
		}
		order = *sized
	}
	if idx, err := q.exec.MarketIndex(order.Market); err == nil {
		order.MarketIndex = idx
	}

	outcome := q.exec.Execute(ctx, bot, &order, entry.IntentID)
	switch {
	case outcome.Err == nil:
		if err := q.store.FinishRetry(entry.ID, models.RetryStatusSucceeded, ""); err != nil {
			log.WithField("entry_id", entry.ID).Errorf("Failed to finish retry: %v", err)
		}
		if err := q.store.ResetBotFailures(entry.BotID); err != nil {
			log.WithField("bot_id", entry.BotID).Errorf("Failed to reset failure counter: %v", err)
		}
		log.WithFields(log.Fields{"entry_id": entry.ID, "bot_id": entry.BotID}).Info("Retry succeeded")

	case outcome.Unknown:
		// Ambiguous timeout: leave the entry terminal and let the reconciler
		// decide. Re-attempting could double-execute.
		if err := q.store.FinishRetry(entry.ID, models.RetryStatusExhausted, "outcome unknown, deferred to reconciler"); err != nil {
			log.WithField("entry_id", entry.ID).Errorf("Failed to finish retry: %v", err)
		}

	case outcome.Class == executor.ClassPermanent:
		q.exhaust(entry, outcome.Err.Error())

	default:
		q.retryOrExhaust(entry, outcome.Err.Error())
	}
}

// sizeEntry sizes an unsized entry from its intent and current venue state.
// Returns false when the entry was finished or rescheduled instead.
func (q *Queue) sizeEntry(ctx context.Context, bot *models.BotConfig, entry *models.RetryEntry) (*sizing.Order, bool) {
	intent, err := q.store.GetIntent(entry.IntentID)
	if err != nil {
		// No intent, nothing to size from. Terminal.
		q.exhaust(entry, fmt.Sprintf("intent %d unavailable: %v", entry.IntentID, err))
		return nil, false
	}
	equity, err := q.exec.Equity(ctx, bot)
	if err != nil {
		q.retryOrExhaust(entry, fmt.Sprintf("failed to fetch equity: %v", err))
		return nil, false
	}
	order, err := q.sizer.Size(intent, bot, equity)
	if err != nil {
		// Sizing failures are permanent, same as on the fresh-intent path.
		q.exhaust(entry, err.Error())
		return nil, false
	}
	return order, true
}

func (q *Queue) retryOrExhaust(entry *models.RetryEntry, lastError string) {
	if entry.Attempt >= entry.MaxAttempts {
		q.exhaust(entry, lastError)
		return
	}
	q.reschedule(entry, lastError)
}

func (q *Queue) reschedule(entry *models.RetryEntry, lastError string) {
	attempt := entry.Attempt + 1
	next := q.now().Add(q.Backoff(attempt))
	if err := q.store.RescheduleRetry(entry.ID, attempt, next, lastError); err != nil {
		log.WithField("entry_id", entry.ID).Errorf("Failed to reschedule retry: %v", err)
		return
	}
	log.WithFields(log.Fields{
		"entry_id":      entry.ID,
		"attempt":       attempt,
		"max_attempts":  entry.MaxAttempts,
		"next_retry_at": next,
	}).Info("Retry failed, rescheduled")
}

// exhaust marks an entry terminally failed and surfaces it: exhaustion is a
// user-visible failure that counts toward auto-pause.
func (q *Queue) exhaust(entry *models.RetryEntry, lastError string) {
	if err := q.store.FinishRetry(entry.ID, models.RetryStatusExhausted, lastError); err != nil {
		log.WithField("entry_id", entry.ID).Errorf("Failed to finish retry: %v", err)
	}
	msg := fmt.Sprintf("trade retry exhausted after %d attempts: %s", entry.Attempt, lastError)
	q.notifier.NotifyBotFailure(entry.BotID, msg)
	if paused, err := q.store.RecordBotFailure(entry.BotID, q.cfg.FailureThreshold, msg); err != nil {
		log.WithField("bot_id", entry.BotID).Errorf("Failed to record bot failure: %v", err)
	} else if paused {
		q.notifier.NotifyBotFailure(entry.BotID, "bot auto-paused after repeated failures")
	}
	log.WithFields(log.Fields{"entry_id": entry.ID, "bot_id": entry.BotID}).Error("Retry attempts exhausted")
}
