package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const auditFileName = "registration.log"

// AuditConsumer listens on the registration queue and appends one line per
// event to <Dir>/registration.log.
type AuditConsumer struct {
	URL   string
	Queue string
	Dir   string
	Log   *zap.Logger
}

// Run connects to RabbitMQ, declares the durable queue and consumes until
// ctx is cancelled.  Connection failures are retried with exponential
// backoff capped at 30s.  Messages that cannot be handled are rejected
// without requeue so a bad payload cannot loop forever.
func (a AuditConsumer) Run(ctx context.Context) error {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	if a.Queue == "" {
		a.Queue = DefaultQueue
	}
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := dial(a.URL, defaultDialTimeout)
		if err != nil {
			a.Log.Warn("audit consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Log.Warn("audit consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.Log.Warn("audit consumer set QoS failed", zap.Error(err))
	}
	if _, err := declareQueue(ch, a.Queue); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, a.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for d := range msgs {
		if err := handleMessage(a.Dir, d.Body); err != nil {
			a.Log.Warn("audit consumer rejected message", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(dir string, body []byte) error {
	var ev RegistrationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReferenceID == "" {
		return fmt.Errorf("incomplete event: type=%q reference_id=%q", ev.Type, ev.ReferenceID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev RegistrationEvent) string {
	occurrence := "-"
	if ev.OccurrenceKey != "" {
		occurrence = ev.OccurrenceKey
	}
	return fmt.Sprintf("[%s] %s | reference_id=%s | owner_id=%s | registrant_id=%s | event_id=%s | scope=%s | occurrence=%s | intent=%s\n",
		ev.OccurredAt, ev.Type, ev.ReferenceID, ev.OwnerID, ev.RegistrantID, ev.EventID, ev.Scope, occurrence, ev.Intent)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
