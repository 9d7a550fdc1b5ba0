package amqpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Message is the queued form of one outbound email.
type Message struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher hands notifications to a durable queue; cmd/notifier delivers them.
// A channel the broker has closed is replaced on the next Send.
type Publisher struct {
	mu      sync.Mutex
	connect func() (channel, io.Closer, error)
	conn    io.Closer
	ch      channel
	queue   string
}

// NewPublisher dials the broker and declares queue (idempotent).
func NewPublisher(url, queue string) (*Publisher, error) {
	p := &Publisher{
		queue:   queue,
		connect: func() (channel, io.Closer, error) { return dial(url, queue) },
	}
	if err := p.reconnect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dial(url, queue string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return ch, conn, nil
}

// reconnect must be called with mu held (or before the Publisher is shared).
func (p *Publisher) reconnect() error {
	p.drop()
	ch, conn, err := p.connect()
	if err != nil {
		return err
	}
	p.ch, p.conn = ch, conn
	return nil
}

func (p *Publisher) drop() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *Publisher) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(Message{To: to, Subject: subject, Body: body, QueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if err := p.reconnect(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		log.Warn().Err(err).Str("queue", p.queue).Msg("rabbitmq channel closed, reconnecting")
		if rerr := p.reconnect(); rerr != nil {
			return rerr
		}
		err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			p.drop()
		}
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.ch, p.conn = nil, nil
	return err
}
