package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/pkg/events"
	"github.com/noah-isme/swiss-arbiter-api/pkg/jobs"
)

// RoutingKeyPrefix prefixes every routing key, e.g. tournament.round.created.
const RoutingKeyPrefix = "tournament."

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel and returns the connection to close with it.
type Dialer func(url string) (amqpChannel, io.Closer, error)

// DialAMQP is the production Dialer.
func DialAMQP(url string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 30 * time.Second, Locale: "en_US"})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return ch, conn, nil
}

// AMQPPublisher publishes tournament events to a topic exchange. Delivery runs on a
// retrying queue so broker outages never block tournament operations.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     Dialer
	logger   *zap.Logger
	queue    *jobs.Queue[events.Event]

	mu      sync.Mutex
	channel amqpChannel
	conn    io.Closer
}

// NewAMQPPublisher constructs the publisher; call Start before publishing.
func NewAMQPPublisher(url, exchange string, dial Dialer, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = DialAMQP
	}
	p := &AMQPPublisher{url: url, exchange: exchange, dial: dial, logger: logger}
	p.queue = jobs.NewQueue("amqp-events", p.deliver, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 256,
		MaxRetries: 5,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return p
}

// Start launches the delivery worker.
func (p *AMQPPublisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Publish implements events.Publisher by enqueueing the event for delivery.
func (p *AMQPPublisher) Publish(_ context.Context, event events.Event) error {
	return p.queue.TryEnqueue(jobs.Task[events.Event]{Key: event.ID, Payload: event})
}

// Close stops delivery and releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.queue.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *AMQPPublisher) deliver(_ context.Context, task jobs.Task[events.Event]) error {
	body, err := json.Marshal(task.Payload)
	if err != nil {
		p.logger.Error("drop unencodable event", zap.String("event_id", task.Key), zap.Error(err))
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannelLocked(); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.Payload.ID,
		Timestamp:    task.Payload.OccurredAt,
		Type:         task.Payload.Type,
		Body:         body,
	}
	if err := p.channel.Publish(p.exchange, RoutingKeyPrefix+task.Payload.Type, false, false, msg); err != nil {
		_ = p.resetLocked()
		return fmt.Errorf("publish %s: %w", task.Payload.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) ensureChannelLocked() error {
	if p.channel != nil {
		return nil
	}
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.channel, p.conn = ch, conn
	return nil
}

func (p *AMQPPublisher) resetLocked() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	p.channel, p.conn = nil, nil
	return err
}
