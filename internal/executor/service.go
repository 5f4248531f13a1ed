package executor

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"perpcontrol/internal/models"
	"perpcontrol/internal/signal"
	"perpcontrol/internal/sizing"
)

// ExecutionJob is the queue message dispatching one accepted intent for
// asynchronous execution.
type ExecutionJob struct {
	IntentID uint `json:"intent_id"`
}

// RetryEnqueuer absorbs failed attempts into the persistent retry queue.
type RetryEnqueuer interface {
	Enqueue(rec *models.TradeRecord, order sizing.Order, cause error) error
	// EnqueueUnsized defers an intent whose order could not be sized yet;
	// the retry sizes it from fresh venue state.
	EnqueueUnsized(rec *models.TradeRecord, intent *models.TradeIntent, cause error) error
}

// Notifier is the bot's user-facing notification channel.
type Notifier interface {
	NotifyBotFailure(botID uint, message string)
}

// Publisher dispatches execution jobs to the worker queue. Nil publisher
// means execution runs in-process.
type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// Dedup is the idempotency guard surface. Registering the hash and
// persisting the intent commit together.
type Dedup interface {
	RegisterIntent(intent *models.TradeIntent) error
}

// ServiceStore is the persistence surface of the orchestration layer.
type ServiceStore interface {
	GetBot(id uint) (*models.BotConfig, error)
	GetIntent(id uint) (*models.TradeIntent, error)
	CreateTradeRecord(rec *models.TradeRecord) error
	RecordBotFailure(botID uint, threshold int, reason string) (bool, error)
	ResetBotFailures(botID uint) error
}

// UnauthorizedSignalError rejects a webhook whose token does not match the
// bot's configured signal token.
type UnauthorizedSignalError struct {
	BotID uint
}

func (e *UnauthorizedSignalError) Error() string {
	return fmt.Sprintf("signal token mismatch for bot %d", e.BotID)
}

// BotInactiveError rejects signals for paused or execution-disabled bots.
type BotInactiveError struct {
	BotID  uint
	Reason string
}

func (e *BotInactiveError) Error() string {
	return fmt.Sprintf("bot %d not accepting signals: %s", e.BotID, e.Reason)
}

// Service runs the webhook-to-trade pipeline: validate, deduplicate, size,
// execute, classify, absorb failures into the retry queue.
type Service struct {
	store    ServiceStore
	guard    Dedup
	sizer    *sizing.Sizer
	exec     *Executor
	locks    *LockRegistry
	queue    RetryEnqueuer
	notifier Notifier

	pub       Publisher
	queueName string

	// failureThreshold is the consecutive-failure count at which a bot is
	// auto-paused.
	failureThreshold int
}

// NewService wires the pipeline. The lock registry is shared with the retry
// queue so retries and fresh intents serialize on the same per-bot lock.
func NewService(store ServiceStore, guard Dedup, sizer *sizing.Sizer, exec *Executor, locks *LockRegistry, queue RetryEnqueuer, notifier Notifier, failureThreshold int) *Service {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if locks == nil {
		locks = NewLockRegistry()
	}
	return &Service{
		store:            store,
		guard:            guard,
		sizer:            sizer,
		exec:             exec,
		locks:            locks,
		queue:            queue,
		notifier:         notifier,
		failureThreshold: failureThreshold,
	}
}

// WithPublisher dispatches accepted intents through the worker queue instead
// of executing in-process.
func (s *Service) WithPublisher(pub Publisher, queueName string) *Service {
	s.pub = pub
	s.queueName = queueName
	return s
}

// HandleWebhook runs the synchronous part of signal intake: validation and
// the idempotency check happen before the webhook response; execution is
// dispatched to complete asynchronously. Returns the accepted intent.
func (s *Service) HandleWebhook(ctx context.Context, botID uint, token string, body []byte) (*models.TradeIntent, error) {
	bot, err := s.store.GetBot(botID)
	if err != nil {
		return nil, err
	}
	if !bot.Active {
		return nil, &BotInactiveError{BotID: botID, Reason: "paused: " + bot.PauseReason}
	}
	if !bot.ExecutionEnabled {
		return nil, &BotInactiveError{BotID: botID, Reason: "execution not authorized"}
	}
	if bot.SignalToken != "" && token != bot.SignalToken {
		return nil, &UnauthorizedSignalError{BotID: botID}
	}

	intent, err := signal.Validate(botID, body)
	if err != nil {
		return nil, err
	}

	// Dedup before any side-effecting work. Hash and intent land in one
	// transaction: a failed intake must not poison the retransmit.
	if err := s.guard.RegisterIntent(intent); err != nil {
		return nil, err
	}

	if s.pub != nil {
		if err := s.pub.Publish(s.queueName, ExecutionJob{IntentID: intent.ID}); err != nil {
			// The intent is accepted and persisted; fall back to in-process
			// execution rather than dropping it.
			log.WithField("intent_id", intent.ID).Errorf("Failed to publish execution job, executing inline: %v", err)
			go s.executeAsync(intent)
		}
	} else {
		go s.executeAsync(intent)
	}

	return intent, nil
}

func (s *Service) executeAsync(intent *models.TradeIntent) {
	if err := s.ExecuteIntent(context.Background(), intent); err != nil {
		log.WithFields(log.Fields{
			"intent_id": intent.ID,
			"bot_id":    intent.BotID,
		}).Errorf("Intent execution failed: %v", err)
	}
}

// ExecuteIntentByID loads and executes an intent; the worker's consumer
// entrypoint.
func (s *Service) ExecuteIntentByID(ctx context.Context, intentID uint) error {
	intent, err := s.store.GetIntent(intentID)
	if err != nil {
		return err
	}
	return s.ExecuteIntent(ctx, intent)
}

// ExecuteIntent runs size→execute under the bot's lock and routes the
// outcome: success resets the failure counter, transient failures enter the
// retry queue, permanent failures surface to the user and count toward
// auto-pause, ambiguous timeouts are left for the reconciler.
func (s *Service) ExecuteIntent(ctx context.Context, intent *models.TradeIntent) error {
	bot, err := s.store.GetBot(intent.BotID)
	if err != nil {
		return err
	}
	if !bot.Active {
		log.WithFields(log.Fields{"bot_id": bot.ID, "intent_id": intent.ID}).Warn("Skipping intent for paused bot")
		return nil
	}

	release, err := s.locks.Acquire(ctx, bot.ID)
	if err != nil {
		return err
	}
	defer release()

	equity, err := s.exec.Equity(ctx, bot)
	if err != nil {
		return s.deferUnsized(bot, intent, fmt.Errorf("failed to fetch equity for bot %d: %w", bot.ID, err))
	}

	order, err := s.sizer.Size(intent, bot, equity)
	if err != nil {
		// Sizing failures are permanent: surfaced immediately, never retried.
		rec := &models.TradeRecord{
			BotID:        bot.ID,
			IntentID:     intent.ID,
			Market:       intent.Symbol,
			Side:         intent.Direction,
			Status:       models.TradeStatusFailed,
			ErrorMessage: err.Error(),
		}
		if cerr := s.store.CreateTradeRecord(rec); cerr != nil {
			log.WithField("intent_id", intent.ID).Errorf("Failed to record sizing failure: %v", cerr)
		}
		s.handlePermanent(bot, err)
		return err
	}

	outcome := s.exec.Execute(ctx, bot, order, intent.ID)
	switch {
	case outcome.Err == nil:
		if err := s.store.ResetBotFailures(bot.ID); err != nil {
			log.WithField("bot_id", bot.ID).Errorf("Failed to reset failure counter: %v", err)
		}
		return nil

	case outcome.Unknown:
		// Ambiguous timeout. The reconciler is the authoritative backstop;
		// do not retry, the order may have landed.
		log.WithFields(log.Fields{
			"bot_id":   bot.ID,
			"trade_id": outcome.Record.ID,
		}).Warn("Execution outcome unknown, deferring to reconciler")
		return nil

	case outcome.Class == ClassPermanent:
		s.handlePermanent(bot, outcome.Err)
		return outcome.Err

	default: // retry or fallback after the alternate path also failed
		if err := s.queue.Enqueue(outcome.Record, *order, outcome.Err); err != nil {
			log.WithField("trade_id", outcome.Record.ID).Errorf("Failed to enqueue retry: %v", err)
			return err
		}
		log.WithFields(log.Fields{
			"bot_id":   bot.ID,
			"trade_id": outcome.Record.ID,
			"class":    outcome.Class,
		}).Info("Execution failed, queued for retry")
		return nil
	}
}

// deferUnsized routes an equity fetch failure. The webhook already answered,
// so a transient venue error enters the retry queue to be sized and executed
// later instead of vanishing with a log line.
func (s *Service) deferUnsized(bot *models.BotConfig, intent *models.TradeIntent, cause error) error {
	rec := &models.TradeRecord{
		BotID:        bot.ID,
		IntentID:     intent.ID,
		Market:       intent.Symbol,
		Side:         intent.Direction,
		Status:       models.TradeStatusFailed,
		ErrorMessage: cause.Error(),
	}
	if err := s.store.CreateTradeRecord(rec); err != nil {
		log.WithField("intent_id", intent.ID).Errorf("Failed to record equity fetch failure: %v", err)
	}

	if Classify(cause) == ClassPermanent {
		s.handlePermanent(bot, cause)
		return cause
	}

	if err := s.queue.EnqueueUnsized(rec, intent, cause); err != nil {
		log.WithField("intent_id", intent.ID).Errorf("Failed to enqueue unsized retry: %v", err)
		return err
	}
	log.WithFields(log.Fields{
		"bot_id":    bot.ID,
		"intent_id": intent.ID,
	}).Info("Equity fetch failed, queued for retry")
	return nil
}

func (s *Service) handlePermanent(bot *models.BotConfig, cause error) {
	s.notifier.NotifyBotFailure(bot.ID, cause.Error())
	paused, err := s.store.RecordBotFailure(bot.ID, s.failureThreshold, cause.Error())
	if err != nil {
		log.WithField("bot_id", bot.ID).Errorf("Failed to record bot failure: %v", err)
		return
	}
	if paused {
		s.notifier.NotifyBotFailure(bot.ID, "bot auto-paused after repeated failures")
		log.WithField("bot_id", bot.ID).Warn("Bot auto-paused after repeated failures")
	}
}

// LogNotifier is the default notification channel: structured logs. Rich
// channels (email, telegram) are external collaborators wired in main.
type LogNotifier struct{}

func (LogNotifier) NotifyBotFailure(botID uint, message string) {
	log.WithFields(log.Fields{
		"bot_id": botID,
		"event":  "bot_failure",
	}).Error(message)
}
