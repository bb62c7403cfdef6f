package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Dhoini/paywall-bot/internal/api/rest"
	"github.com/Dhoini/paywall-bot/internal/config"
	"github.com/Dhoini/paywall-bot/internal/db"
	"github.com/Dhoini/paywall-bot/internal/kafka"
	"github.com/Dhoini/paywall-bot/internal/kafka/producer"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/internal/repository/postgres"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/internal/scheduler"
	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/internal/telegram"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.ERROR).Fatalw("Failed to load configuration", "error", err)
	}

	log := logger.NewWithOptions(logger.Options{
		Level: logger.ParseLevel(cfg.App.LogLevel),
		JSON:  cfg.IsProduction(),
	})
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}
	loc, _ := cfg.Location()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Infow("Paywall bot starting up", "env", cfg.App.Env, "testMode", cfg.Robokassa.TestMode)

	// PostgreSQL
	pool, err := postgres.NewConnection(ctx, cfg.Database.URL, cfg.Database.ConnectWait, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool, log); err != nil {
		log.Fatalw("Failed to prepare database schema", "error", err)
	}

	var subscriptions repository.SubscriptionRepository = postgres.NewPostgresSubscriptionRepository(pool, log)
	payments := postgres.NewPostgresPaymentRepository(pool, log)
	users := postgres.NewPostgresUserRepository(pool, log)

	statsClient, err := db.NewDBClient(ctx, cfg.Database.URL, log.Zap())
	if err != nil {
		log.Fatalw("Failed to open statistics connection", "error", err)
	}
	defer statsClient.Close()

	// Redis: кеш активных подписок и блокировка обходов. Без Redis работаем напрямую.
	var locker scheduler.Locker = scheduler.NopLocker{}
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Redis is unavailable, continuing without cache", "error", err)
		} else {
			defer closeRedis(redisClient, log)
			cache := repository.NewRedisCacheRepository(redisClient, cfg.Redis.CacheTTL, log)
			subscriptions = repository.NewCachedSubscriptionRepository(subscriptions, cache, log)
			locker = scheduler.NewRedisLocker(redisClient)
			log.Info("Using cached subscription repository")
		}
	}

	events := newPublisher(ctx, cfg, log)
	defer func() {
		if err := events.Close(); err != nil {
			log.Errorw("Error closing event publisher", "error", err)
		}
	}()

	registry := metrics.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	// Robokassa
	signer := robokassa.NewSigner(cfg.Robokassa.MerchantLogin, cfg.Robokassa.Password1, cfg.Robokassa.Password2)
	links := robokassa.NewLinkBuilder(signer, cfg.Robokassa.PaymentURL, cfg.Robokassa.TestMode)
	charger := robokassa.NewRecurringClient(signer, cfg.Robokassa.RecurringURL, cfg.Robokassa.RecurringTimeout, log)
	invoices := robokassa.NewInvoiceIDs(nil)

	// Telegram
	botAPI, err := telegram.NewBotAPI(cfg.Telegram.Token, log)
	if err != nil {
		log.Fatalw("Failed to start Telegram bot", "error", err)
	}
	client := telegram.NewClient(botAPI, telegram.ClientConfig{
		ChannelID:   cfg.Telegram.ChannelID,
		ChannelLink: cfg.Telegram.ChannelLink,
		AdminIDs:    cfg.Telegram.AdminIDs,
		LinkTTL:     cfg.Telegram.LinkMessageTTL,
	}, log)
	defer client.Close()

	opts := service.Options{
		Price:       cfg.Subscription.Price,
		Currency:    cfg.Subscription.Currency,
		Description: cfg.Subscription.Description,
		Period:      cfg.RenewalPeriod(),
		Location:    loc,
	}

	paymentService := service.NewPaymentService(subscriptions, payments, client, events, paymentMetrics, opts, nil, log)
	subscriptionService := service.NewSubscriptionService(service.SubscriptionDeps{
		Subscriptions: subscriptions,
		Payments:      payments,
		Users:         users,
		Stats:         statsClient,
	}, links, invoices, events, opts, nil, log)
	recurringService := service.NewRecurringService(subscriptions, charger, links, invoices, client, events, paymentMetrics, opts, nil, log)
	expiryService := service.NewExpiryService(subscriptions, links, invoices, client, events, paymentMetrics, opts, nil, log)

	// HTTP
	router := rest.SetupRouter(rest.RouterDeps{
		Verifier:      signer,
		Payments:      paymentService,
		Subscriptions: subscriptionService,
		Metrics:       paymentMetrics,
		Registry:      registry,
		JWTSecret:     cfg.Auth.JWTSecret,
	}, log)
	server := rest.NewServer(router, cfg.App.Port, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Errorw("HTTP server stopped", "error", err)
			stop()
		}
	}()

	// Ежедневные обходы
	sched := scheduler.New(loc, locker, log)
	if err := sched.Add(scheduler.JobExpiry, cfg.Schedule.ExpiryCron, func(ctx context.Context) error {
		_, err := expiryService.Run(ctx)
		return err
	}); err != nil {
		log.Fatalw("Failed to schedule expiry check", "error", err)
	}
	if err := sched.Add(scheduler.JobRecurring, cfg.Schedule.RecurringCron, func(ctx context.Context) error {
		_, err := recurringService.Run(ctx)
		return err
	}); err != nil {
		log.Fatalw("Failed to schedule recurring charges", "error", err)
	}
	bot := telegram.NewBot(client, telegram.BotDeps{
		Subscriptions: subscriptionService,
		Payments:      paymentService,
		Jobs:          sched,
	}, cfg.Robokassa.TestMode, loc, log)
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		bot.Run(ctx, botAPI)
	}()

	sched.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Errorw("Scheduler shutdown error", "error", err)
	}
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		log.Warn("Telegram update loop did not stop in time")
	}
	log.Info("Cleanup finished. Goodbye!")
}

// newPublisher выбирает клиент Kafka по KAFKA_CLIENT. Без брокеров события не публикуются.
func newPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) kafka.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("Kafka brokers are not configured, events are not published")
		return kafka.NoopPublisher{}
	}

	if err := kafka.EnsureKafkaTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log); err != nil {
		log.Warnw("Failed to ensure Kafka topics", "error", err)
	}

	var (
		publisher kafka.Publisher
		err       error
	)
	switch cfg.Kafka.Client {
	case "sarama":
		publisher, err = producer.NewSaramaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log)
	default:
		publisher, err = kafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, log)
	}
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return kafka.NoopPublisher{}
	}
	log.Infow("Kafka producer initialized", "client", cfg.Kafka.Client)
	return publisher
}

func closeRedis(client *redis.Client, log *logger.Logger) {
	if err := client.Close(); err != nil {
		log.Errorw("Error closing Redis connection", "error", err)
	}
}

