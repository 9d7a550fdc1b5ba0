package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-todo-api/internal/metrics"
)

// Sender delivers one message to one address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher sends notifications in the background. Notify never blocks on
// delivery and never reports failure to the caller; failures are logged.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, log: logger}
}

// Notify schedules delivery. The send outlives ctx's cancellation but keeps its values.
func (d *Dispatcher) Notify(ctx context.Context, to, subject, body string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := d.sender.Send(sendCtx, to, subject, body); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			d.log.Error().Err(err).Str("subject", subject).Msg("notification delivery failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		d.log.Debug().Str("subject", subject).Msg("notification sent")
	}()
}

// Wait blocks until in-flight sends finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes notifications to the log instead of delivering them.
// Used in local development.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}
