package events

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the topic exchange ledger events are published to. The
// routing key is the event kind.
const Exchange = "ledger-events"

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc opens a channel with the exchange declared, along with the
// connection that carries it.
type dialFunc func() (publishChannel, io.Closer, error)

// Publisher is a Sink that publishes events to RabbitMQ. A dropped
// connection is re-dialled on the next publish.
type Publisher struct {
	dial   dialFunc
	logger *zap.Logger

	mu      sync.Mutex
	conn    io.Closer
	channel publishChannel
}

// NewPublisher connects to RabbitMQ and declares the ledger exchange.
func NewPublisher(uri string, logger *zap.Logger) (*Publisher, error) {
	return newPublisher(func() (publishChannel, io.Closer, error) {
		return dialAMQP(uri)
	}, logger)
}

func newPublisher(dial dialFunc, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{dial: dial, logger: logger.Named("rabbitmq")}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(uri string) (publishChannel, io.Closer, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return channel, conn, nil
}

func (p *Publisher) connectLocked() error {
	channel, conn, err := p.dial()
	if err != nil {
		return err
	}
	p.conn = conn
	p.channel = channel
	return nil
}

func (p *Publisher) Emit(ctx context.Context, e Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// a closed connection closes its channels too
	if p.channel == nil || p.channel.IsClosed() {
		p.logger.Warn("RabbitMQ connection lost, reconnecting")
		p.closeLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		Exchange,       // exchange
		string(e.Kind), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    time.Unix(e.Timestamp, 0),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Kind, err)
	}
	return nil
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

// Close closes the connection and channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}
