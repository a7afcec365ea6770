package mailing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"docutalk-backend/internal/metrics"
	"docutalk-backend/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AttemptsHeader counts deliveries of a queued email.
const AttemptsHeader = "x-attempts"

func RetryQueue(queue string) string { return queue + ".retry" }
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// DeclareTopology declares the main queue, its retry queue and its DLQ.
// The retry queue dead-letters expired messages back to the main queue; the
// main queue dead-letters rejected ones to the DLQ. Publisher and worker
// both call it so either can start first.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring %s: %w", DeadLetterQueue(queue), err)
	}
	if _, err := ch.QueueDeclare(RetryQueue(queue), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declaring %s: %w", RetryQueue(queue), err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(queue),
	}); err != nil {
		return fmt.Errorf("declaring %s: %w", queue, err)
	}
	return nil
}

var _ Dispatcher = (*QueueDispatcher)(nil)

// QueueDispatcher publishes rendered emails for cmd/mailer to deliver.
type QueueDispatcher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

func NewQueueDispatcher(url, queue string) (*QueueDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &QueueDispatcher{conn: conn, ch: ch, queue: queue}, nil
}

func (q *QueueDispatcher) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, e Email) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q.mu.Lock()
	err = q.ch.PublishWithContext(cctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{AttemptsHeader: int32(0)},
	})
	q.mu.Unlock()
	if err != nil {
		metrics.EmailsDispatched.WithLabelValues(e.Template, "failed").Inc()
		return fmt.Errorf("publishing email: %w", err)
	}
	metrics.EmailsDispatched.WithLabelValues(e.Template, "queued").Inc()
	logger.Debug("[QueueDispatcher] email queued", zap.String("template", e.Template))
	return nil
}
