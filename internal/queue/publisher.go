package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultQueue is the durable queue registration events are routed to.
const DefaultQueue = "registration.events"

const (
	defaultBuffer      = 256
	defaultDialTimeout = 3 * time.Second
)

// ErrBufferFull is returned by Publish when the delivery loop has fallen
// behind and the event was not accepted.
var ErrBufferFull = errors.New("registration event buffer full")

// Publisher hands registration events to a background delivery loop (Run)
// that keeps one RabbitMQ connection open and redials when it breaks.
// Publish only enqueues, so request handlers never wait on the broker.
type Publisher struct {
	url         string
	queue       string
	dialTimeout time.Duration
	log         *zap.Logger
	events      chan RegistrationEvent

	// owned by Run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  An empty queue
// name selects DefaultQueue.  Nothing is delivered until Run is started.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		url:         url,
		queue:       queue,
		dialTimeout: defaultDialTimeout,
		log:         log,
		events:      make(chan RegistrationEvent, defaultBuffer),
	}
}

// Publish queues ev for delivery.  It never blocks; when the buffer is full
// the event is refused with ErrBufferFull.
func (p *Publisher) Publish(_ context.Context, ev RegistrationEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run delivers queued events until ctx is cancelled, then makes one last
// bounded attempt to flush whatever is still buffered.  Delivery failures
// drop the event and are logged here.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.reset()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case ev := <-p.events:
			p.deliver(ctx, ev)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			if ctx.Err() != nil {
				p.log.Warn("registration event dropped at shutdown", zap.String("type", ev.Type), zap.String("reference_id", ev.ReferenceID))
				continue
			}
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, ev RegistrationEvent) {
	if err := p.send(ctx, ev); err != nil {
		p.log.Warn("registration event not delivered",
			zap.String("type", ev.Type),
			zap.String("reference_id", ev.ReferenceID),
			zap.Error(err),
		)
	}
}

// send publishes ev as a persistent JSON message through the default
// exchange.
func (p *Publisher) send(ctx context.Context, ev RegistrationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		MessageId:    ev.ReferenceID + ":" + ev.Type,
		Body:         body,
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(sendCtx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing a new connection when there
// is none or the previous one was closed by the broker.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declareQueue(ch, p.queue); err != nil {
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
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// dial connects with timeout bounding both the TCP connect and the AMQP
// handshake.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	return conn, nil
}

// declareQueue makes sure the durable queue exists.  Declaring is
// idempotent so both the publisher and the consumer do it.
func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue declare: %w", err)
	}
	return q, nil
}
