package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/services"
)

// Config tunes the scoring worker and its reconciler.
type Config struct {
	// GracePeriod is how long a completed attempt may sit unscored
	// before the reconciler re-runs it.
	GracePeriod time.Duration

	// ReconcileInterval is how often the reconciler sweeps.
	ReconcileInterval time.Duration

	// ReconcileBatchSize caps attempts replayed per sweep.
	ReconcileBatchSize int
}

func (c *Config) applyDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 2 * time.Minute
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = 100
	}
}

// ScoringWorker consumes submitted-attempt events and drives the scoring
// pipeline. A periodic reconciler backstops lost events by replaying
// completed attempts that stayed unscored past the grace period, so
// every submitted attempt is eventually scored even when the bus drops a
// message.
type ScoringWorker struct {
	subscriber message.Subscriber
	scoring    services.ScoringService
	logger     *slog.Logger
	config     Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScoringWorker(
	subscriber message.Subscriber,
	scoring services.ScoringService,
	config Config,
	logger *slog.Logger,
) *ScoringWorker {
	config.applyDefaults()
	return &ScoringWorker{
		subscriber: subscriber,
		scoring:    scoring,
		logger:     logger,
		config:     config,
	}
}

// Start subscribes to the submitted topic and launches the consume and
// reconcile loops. Non-blocking; Stop shuts both down.
func (w *ScoringWorker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	messages, err := w.subscriber.Subscribe(ctx, events.TopicAttemptSubmitted)
	if err != nil {
		w.cancel()
		return err
	}

	w.wg.Add(2)
	go w.consume(ctx, messages)
	go w.reconcile(ctx)

	w.logger.Info("scoring worker started",
		"grace_period", w.config.GracePeriod,
		"reconcile_interval", w.config.ReconcileInterval)
	return nil
}

// Stop cancels the loops and waits for them to drain.
func (w *ScoringWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("scoring worker stopped")
}

func (w *ScoringWorker) consume(ctx context.Context, messages <-chan *message.Message) {
	defer w.wg.Done()

	for msg := range messages {
		w.handle(ctx, msg)
	}
}

// handle scores one submitted attempt. The pipeline is idempotent, so a
// redelivered or replayed event is acked without effect. Failures nack
// for redelivery; the reconciler catches anything the bus gives up on.
func (w *ScoringWorker) handle(ctx context.Context, msg *message.Message) {
	var event events.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.logger.Error("dropping undecodable event",
			"message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}

	var payload events.AttemptSubmittedEvent
	if err := event.DecodeData(&payload); err != nil {
		w.logger.Error("dropping event with bad payload",
			"message_id", msg.UUID, "event_type", event.Type, "error", err)
		msg.Ack()
		return
	}

	if err := w.scoring.ScoreAttempt(ctx, payload.AttemptID); err != nil {
		w.logger.Error("scoring failed, requeueing",
			"attempt_id", payload.AttemptID, "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

func (w *ScoringWorker) reconcile(ctx context.Context) {
	defer w.wg.Done()

	// Sweep once at startup to pick up whatever was submitted while the
	// worker was down.
	w.sweep(ctx)

	ticker := time.NewTicker(w.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ScoringWorker) sweep(ctx context.Context) {
	scored, err := w.scoring.ReplayUnscored(ctx, w.config.GracePeriod, w.config.ReconcileBatchSize)
	if err != nil {
		w.logger.Error("reconcile sweep failed", "error", err)
		return
	}
	if scored > 0 {
		w.logger.Info("reconcile sweep recovered attempts", "count", scored)
	}
}
