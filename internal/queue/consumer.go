package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/stay-reservation/internal/config"
)

// Sender delivers one event to the booking's requesting user.
type Sender interface {
	SendBookingEvent(ctx context.Context, ev BookingEvent) error
}

// LogSender records events instead of delivering them.  It is used when no
// SMTP relay is configured.
type LogSender struct{ Logger *log.Logger }

func (s LogSender) SendBookingEvent(_ context.Context, ev BookingEvent) error {
	s.Logger.Infoj(log.JSON{
		"event":      "booking_notification",
		"kind":       ev.Kind,
		"booking_id": ev.BookingID,
		"user_id":    ev.UserID,
		"email":      ev.Email,
		"status":     ev.Status,
		"payment":    ev.PaymentStatus,
	})
	return nil
}

// StartNotificationConsumer consumes the booking queue until ctx is done,
// reconnecting with capped exponential backoff.  A message the sender
// rejects is nacked without requeue so a poison message cannot loop.
func StartNotificationConsumer(ctx context.Context, cfg config.QueueConfig, sender Sender, logger *log.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warnj(log.JSON{"event": "consumer_dial_failed", "error": err.Error(), "retry_in": backoff.String()})
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg.QueueName, sender, logger)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			logger.Warnj(log.JSON{"event": "consumer_loop_ended", "error": err.Error()})
			if !sleep(ctx, 2*time.Second) {
				return
			}
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, sender Sender, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warnj(log.JSON{"event": "consumer_qos_failed", "error": err.Error()})
	}
	if err := declareQueue(ch, queueName); err != nil {
		return err
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, sender); err != nil {
				logger.Errorj(log.JSON{"event": "notification_failed", "error": err.Error()})
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, sender Sender) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == 0 || ev.Kind == "" {
		return fmt.Errorf("malformed event: %s", body)
	}
	return sender.SendBookingEvent(ctx, ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
