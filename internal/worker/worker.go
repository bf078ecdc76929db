package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/illegalcall/nutrition-navigator/internal/config"
	"github.com/illegalcall/nutrition-navigator/internal/metrics"
	"github.com/illegalcall/nutrition-navigator/internal/models"
)

// Recorder aggregates created food logs.
type Recorder interface {
	Record(ctx context.Context, ev models.FoodLogEvent) (bool, error)
}

type Worker struct {
	cfg      *config.Config
	recorder Recorder
	consumer sarama.ConsumerGroup
	logger   *slog.Logger
}

func NewWorker(cfg *config.Config, recorder Recorder, consumer sarama.ConsumerGroup, logger *slog.Logger) *Worker {
	logger.Info("Initializing new Worker")
	return &Worker{
		cfg:      cfg,
		recorder: recorder,
		consumer: consumer,
		logger:   logger,
	}
}

// Start consumes food log events until ctx is cancelled or the group is closed.
func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	w.logger.Info("Starting worker", "topics", topics, "group", w.cfg.Kafka.Group)

	go func() {
		for err := range w.consumer.Errors() {
			w.logger.Error("Kafka consumer error received", "error", err)
		}
	}()

	for {
		// Consume returns on every rebalance and has to be called again.
		if err := w.consumer.Consume(ctx, topics, w); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				w.logger.Info("Consumer group closed; worker exiting")
				return nil
			}
			w.logger.Error("Error from consumer.Consume", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.Kafka.RetryBackoff):
			}
		}
		if ctx.Err() != nil {
			w.logger.Info("Context cancelled; shutting down worker")
			return nil
		}
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(session sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session setup complete", "member", session.MemberID())
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session cleanup complete")
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
// Every message is marked, including ones that could not be processed.
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := w.processEvent(session.Context(), message); err != nil {
				w.logger.Error("Failed to process food log event",
					"error", err, "offset", message.Offset, "partition", message.Partition)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev models.FoodLogEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		metrics.WorkerEvents.WithLabelValues(metrics.ResultSkipped).Inc()
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if ev.Type != models.EventFoodLogCreated {
		metrics.WorkerEvents.WithLabelValues(metrics.ResultSkipped).Inc()
		w.logger.Debug("Ignoring event", "type", ev.Type)
		return nil
	}
	if ev.ID == "" || ev.UserID == "" || !ev.EntryMethod.Valid() {
		metrics.WorkerEvents.WithLabelValues(metrics.ResultSkipped).Inc()
		return fmt.Errorf("malformed food log event %q", ev.ID)
	}

	attempts := w.cfg.Kafka.RetryMax
	if attempts < 1 {
		attempts = 1
	}

	var recorded bool
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		recorded, err = w.recorder.Record(ctx, ev)
		if err == nil {
			break
		}
		w.logger.Warn("Recording food log event failed", "id", ev.ID, "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			metrics.WorkerEvents.WithLabelValues(metrics.ResultError).Inc()
			return ctx.Err()
		case <-time.After(w.cfg.Kafka.RetryBackoff):
		}
	}

	switch {
	case err != nil:
		metrics.WorkerEvents.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("giving up on event %s after %d attempts: %w", ev.ID, attempts, err)
	case !recorded:
		metrics.WorkerEvents.WithLabelValues(metrics.ResultSkipped).Inc()
		w.logger.Info("Food log event already recorded", "id", ev.ID)
	default:
		metrics.WorkerEvents.WithLabelValues(metrics.ResultSuccess).Inc()
		w.logger.Info("Food log event recorded", "id", ev.ID, "method", ev.EntryMethod)
	}
	return nil
}
