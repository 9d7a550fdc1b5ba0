package amqpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// errMalformed marks a delivery that can never succeed and is dropped.
var errMalformed = errors.New("malformed notification")

// redeliveryPause throttles a message that keeps failing so a down mail
// server does not turn the queue into a busy loop.
const redeliveryPause = 2 * time.Second

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Sender delivers a dequeued message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Consume drains queue into sender until ctx is cancelled, reconnecting with
// backoff when the broker goes away.
func Consume(ctx context.Context, url, queue string, sender Sender) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("notifier: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, sender)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("notifier: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, sender Sender) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Warn().Err(err).Msg("notifier: set QoS failed")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
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
			err := handle(ctx, d.Body, sender)
			settle(ctx, &d, d.Redelivered, err, redeliveryPause)
		}
	}
}

// settle acks a delivered message, drops a malformed one and requeues the
// rest. A message that already failed once waits pause before going back.
func settle(ctx context.Context, d acknowledger, redelivered bool, err error, pause time.Duration) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformed):
		log.Error().Err(err).Msg("notifier: dropping malformed message")
		_ = d.Nack(false, false)
	default:
		log.Warn().Err(err).Bool("redelivered", redelivered).Msg("notifier: delivery failed, requeueing")
		if redelivered && pause > 0 {
			sleep(ctx, pause)
		}
		_ = d.Nack(false, true)
	}
}

func handle(ctx context.Context, body []byte, sender Sender) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.To == "" {
		return fmt.Errorf("%w: no recipient", errMalformed)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return sender.Send(sendCtx, msg.To, msg.Subject, msg.Body)
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
