package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/worker/queue"
)

type WorkerStats struct {
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Dropped   int       `json:"dropped"`
	Pool      PoolStats `json:"pool"`
	StartedAt time.Time `json:"started_at"`
}

// CheckWorker runs plagiarism checks requested over the message queue.
type CheckWorker struct {
	pool     *WorkerPool
	consumer queue.RabbitMQConsumer
	checks   service.PlagiarismService
	timeout  time.Duration
	logger   zerolog.Logger

	statsMu sync.Mutex
	stats   WorkerStats
	done    chan struct{}
}

func NewCheckWorker(
	pool *WorkerPool,
	consumer queue.RabbitMQConsumer,
	checks service.PlagiarismService,
	timeout time.Duration,
	logger zerolog.Logger,
) *CheckWorker {
	return &CheckWorker{
		pool:     pool,
		consumer: consumer,
		checks:   checks,
		timeout:  timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (w *CheckWorker) Start(ctx context.Context) error {
	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	w.pool.Start()
	w.statsMu.Lock()
	w.stats.StartedAt = time.Now()
	w.statsMu.Unlock()

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Check worker started")
	return nil
}

// Stop waits for the message loop to exit and for in-flight checks to finish.
// The context given to Start must be cancelled first.
func (w *CheckWorker) Stop() {
	<-w.done
	w.pool.Stop()

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	stats := w.Stats()
	w.logger.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Int("dropped", stats.Dropped).
		Msg("Check worker stopped")
}

func (w *CheckWorker) processMessages(ctx context.Context, msgs <-chan queue.RabbitMQMessage) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			err := w.pool.Submit(ctx, func() { w.handle(ctx, msg) })
			if err != nil {
				w.logger.Warn().Err(err).Msg("Could not schedule check, requeueing")
				if nackErr := msg.Nack(false, true); nackErr != nil {
					w.logger.Error().Err(nackErr).Msg("Failed to nack message")
				}
			}
		}
	}
}

func (w *CheckWorker) handle(ctx context.Context, msg queue.RabbitMQMessage) {
	err := w.processMessage(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		w.count(func(s *WorkerStats) { s.Processed++ })
		return
	}

	w.logger.Error().Err(err).Bool("redelivered", msg.Redeliver).Msg("Failed to process check request")

	// Permanent failures and repeated transient ones are dropped; the
	// document stays pending for the scheduled sweep.
	if isPermanentError(err) || msg.Redeliver {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		w.count(func(s *WorkerStats) { s.Failed++; s.Dropped++ })
		return
	}

	if nackErr := msg.Nack(false, true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
	w.count(func(s *WorkerStats) { s.Failed++ })
}

func (w *CheckWorker) processMessage(ctx context.Context, msg queue.RabbitMQMessage) error {
	event, err := queue.DecodeCheckRequest(msg.Body)
	if err != nil {
		return permanent(err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	_, err = w.checks.Check(ctx, event.DocumentID, event.ExcludeReferences, event.ExcludeQuotes)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrInvalidDocumentID),
		errors.Is(err, service.ErrTargetExtraction):
		return permanent(err)
	default:
		return err
	}
}

func (w *CheckWorker) count(update func(*WorkerStats)) {
	w.statsMu.Lock()
	update(&w.stats)
	w.statsMu.Unlock()
}

func (w *CheckWorker) Stats() WorkerStats {
	w.statsMu.Lock()
	stats := w.stats
	w.statsMu.Unlock()

	stats.Pool = w.pool.Stats()
	return stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
