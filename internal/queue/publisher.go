package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/stay-reservation/internal/config"
)

// dialTimeout bounds connection setup when the caller's context has no
// deadline of its own.
const dialTimeout = 5 * time.Second

// Publisher sends BookingEvents to the durable booking queue.  It keeps
// one connection and redials after a failed publish.
type Publisher struct {
	cfg    config.QueueConfig
	logger *log.Logger

	// sem guards conn and ch.  It is a channel so waiting for it can be
	// abandoned when the caller's context ends.
	sem  chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg config.QueueConfig, logger *log.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger, sem: make(chan struct{}, 1)}
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publisher busy: %w", ctx.Err())
	}
}

func (p *Publisher) unlock() { <-p.sem }

// PublishBookingEvent marks messages persistent so they survive a broker
// restart.  Errors are returned; callers treat them as warnings.
func (p *Publisher) PublishBookingEvent(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Kind, err)
	}

	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Kind),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", p.cfg.QueueName, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.sem <- struct{}{}
	defer p.unlock()
	p.reset()
}

// channel returns the open channel or dials a new one.  The TCP connect
// and the AMQP handshake both end by ctx's deadline.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return p.ch, nil
	}
	p.reset()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	timeout := dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if timeout = time.Until(dl); timeout <= 0 {
			return nil, fmt.Errorf("dial broker: %w", context.DeadlineExceeded)
		}
	}
	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, p.cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// declareQueue is idempotent; publisher and consumer both call it.
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}
