package mailing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"docutalk-backend/internal/metrics"
	"docutalk-backend/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Delivery is the part of amqp.Delivery the worker acts on.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Republisher puts a message on the retry queue.
type Republisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type WorkerConfig struct {
	Queue       string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Worker delivers queued emails through a Sender.
type Worker struct {
	cfg    WorkerConfig
	sender Sender
	pub    Republisher
	mu     sync.Mutex
}

func NewWorker(cfg WorkerConfig, sender Sender, pub Republisher) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{cfg: cfg, sender: sender, pub: pub}
}

// Run consumes from ch until ctx is done or the delivery channel closes.
func (w *Worker) Run(ctx context.Context, ch *amqp.Channel) error {
	if err := ch.Qos(w.cfg.Concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(w.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	jobs := make(chan amqp.Delivery, w.cfg.Concurrency*2)
	var wg sync.WaitGroup
	wg.Add(w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for d := range jobs {
				w.Handle(ctx, &d, d.Body, d.Headers)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			logger.Info("[MailWorker] shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			jobs <- d
		}
	}
}

// Handle sends one message. Failed sends go to the retry queue until
// MaxAttempts is reached, then the message is rejected into the DLQ.
func (w *Worker) Handle(ctx context.Context, d Delivery, body []byte, headers amqp.Table) {
	var e Email
	if err := json.Unmarshal(body, &e); err != nil || e.To == "" {
		logger.Error("[MailWorker] bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := w.sender.Send(ctx, e)
	if err == nil {
		metrics.EmailsDispatched.WithLabelValues(e.Template, "sent").Inc()
		if err := d.Ack(false); err != nil {
			logger.Error("[MailWorker] ack failed", zap.Error(err))
		}
		return
	}

	attempts := Attempts(headers) + 1
	logger.Warn("[MailWorker] send failed",
		zap.String("template", e.Template),
		zap.Int("attempt", attempts),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if attempts >= w.cfg.MaxAttempts {
		metrics.EmailsDispatched.WithLabelValues(e.Template, "dead_lettered").Inc()
		_ = d.Nack(false, false)
		return
	}

	w.mu.Lock()
	perr := w.pub.PublishWithContext(ctx, "", RetryQueue(w.cfg.Queue), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Expiration:   strconv.FormatInt(w.cfg.RetryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{AttemptsHeader: int32(attempts)},
		Timestamp:    time.Now(),
	})
	w.mu.Unlock()
	if perr != nil {
		logger.Error("[MailWorker] retry publish failed, requeueing", zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Attempts reads the attempt counter, accepting any integer type the broker
// hands back.
func Attempts(h amqp.Table) int {
	switch v := h[AttemptsHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	}
	return 0
}
