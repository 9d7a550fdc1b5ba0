package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/go-todo-api/internal/application/auth"
	"github.com/go-todo-api/internal/application/notification"
	"github.com/go-todo-api/internal/application/otp"
	"github.com/go-todo-api/internal/application/todo"
	"github.com/go-todo-api/internal/config"
	"github.com/go-todo-api/internal/domain"
	amqpinfra "github.com/go-todo-api/internal/infrastructure/amqp"
	"github.com/go-todo-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-todo-api/internal/infrastructure/jwt"
	"github.com/go-todo-api/internal/infrastructure/memory"
	mongoinfra "github.com/go-todo-api/internal/infrastructure/mongo"
	s3infra "github.com/go-todo-api/internal/infrastructure/s3"
	"github.com/go-todo-api/internal/infrastructure/smtp"
	"github.com/go-todo-api/internal/infrastructure/sns"
	"github.com/go-todo-api/internal/pkg/logging"
	transporthttp "github.com/go-todo-api/internal/transport/http"
	appmiddleware "github.com/go-todo-api/internal/transport/http/middleware"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogEncoding())
	if envErr != nil {
		log.Debug().Msg("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	users, closeUsers, err := newCredentialStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("credential store unavailable")
	}
	closers = append(closers, closeUsers)

	todos, err := newTodoStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.TodoDriver).Msg("todo store unavailable")
	}

	sender, closeSender, err := newSender(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.NotifyDriver).Msg("notification sender unavailable")
	}
	closers = append(closers, closeSender)
	dispatcher := notification.NewDispatcher(sender, cfg.NotifyTimeout, logger)

	issuer, err := jwtinfra.NewIssuer(jwtinfra.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("jwt issuer")
	}

	engine := otp.NewEngine(users, dispatcher, otp.Config{
		VerifyTTL:       cfg.OTP.VerifyTTL,
		VerifyResendTTL: cfg.OTP.VerifyResendTTL,
		ResetTTL:        cfg.OTP.ResetTTL,
		BcryptCost:      cfg.OTP.BcryptCost,
	})

	limiter, closeLimiter := newLimiter(ctx, cfg)
	closers = append(closers, closeLimiter)

	deps := &transporthttp.Deps{
		Auth: auth.NewService(auth.ServiceDeps{
			Users:        users,
			OTP:          engine,
			Tokens:       issuer,
			PasswordCost: cfg.OTP.BcryptCost,
		}),
		Todos:   todo.NewService(todos),
		Tokens:  issuer,
		Limiter: limiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, logger, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.AppPort).Str("env", cfg.AppEnv).
			Str("store", cfg.StoreDriver).Str("notify", cfg.NotifyDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notifications still in flight at shutdown")
	}
	log.Info().Msg("server stopped")
}

func newCredentialStore(ctx context.Context, cfg *config.Config) (domain.CredentialStore, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case "mongo":
		client, err := mongoinfra.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, noop, err
		}
		repo := mongoinfra.NewUserRepo(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, noop, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	case "memory":
		log.Warn().Msg("using in-memory credential store, data is lost on restart")
		return memory.NewUserStore(), noop, nil
	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewUserRepo(client, cfg.DynamoTables.Users, cfg.DynamoTables.UserEmails), noop, nil
	}
}

func newTodoStore(ctx context.Context, cfg *config.Config) (todo.Store, error) {
	if cfg.TodoDriver == "memory" {
		return memory.NewTodoStore(), nil
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s3infra.EnsureBucket(ctx, client, cfg.S3BucketName); err != nil {
		return nil, err
	}
	return s3infra.NewTodoStore(client, cfg.S3BucketName), nil
}

func newSender(ctx context.Context, cfg *config.Config) (notification.Sender, func(), error) {
	noop := func() {}
	switch cfg.NotifyDriver {
	case "smtp":
		return smtp.NewMailer(cfg), noop, nil
	case "sns":
		s, err := sns.NewSender(ctx, cfg)
		return s, noop, err
	case "amqp":
		p, err := amqpinfra.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, noop, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return notification.LogSender{Logger: log.Logger}, noop, nil
	}
}

// newLimiter prefers the shared Redis limiter and falls back to the
// in-process one when Redis is not configured or unreachable.
func newLimiter(ctx context.Context, cfg *config.Config) (appmiddleware.Limiter, func()) {
	rl := cfg.RateLimit
	trusted, err := appmiddleware.ParseTrustedProxies(rl.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid RATE_LIMIT_TRUSTED_PROXIES")
	}
	if rl.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rl.RedisAddr, Password: rl.RedisPassword, DB: rl.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return appmiddleware.NewRedisRateLimiter(rdb, "ratelimit:credentials", rl.WindowLimit, rl.Window, trusted),
				func() { _ = rdb.Close() }
		}
		log.Warn().Err(err).Str("addr", rl.RedisAddr).Msg("redis unreachable, using in-process rate limiter")
		_ = rdb.Close()
	}
	return appmiddleware.NewRateLimiter(ctx, rate.Limit(rl.RPS), rl.Burst, trusted), func() {}
}
