package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/go-todo-api/internal/config"
	amqpinfra "github.com/go-todo-api/internal/infrastructure/amqp"
	"github.com/go-todo-api/internal/infrastructure/smtp"
	"github.com/go-todo-api/internal/pkg/logging"
)

// notifier drains the email queue filled by the API when NOTIFY_DRIVER=amqp
// and delivers each message over SMTP.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogEncoding())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.AMQPQueue).Str("smtp_host", cfg.SMTPHost).Msg("notifier starting")
	err = amqpinfra.Consume(ctx, cfg.AMQPURL, cfg.AMQPQueue, smtp.NewMailer(cfg))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("notifier stopped")
	}
	log.Info().Msg("notifier stopped")
}
