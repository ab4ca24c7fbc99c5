package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linemk/eshop/internal/app"
	"github.com/linemk/eshop/internal/catalog"
	"github.com/linemk/eshop/internal/config"
	"github.com/linemk/eshop/internal/lib/logger"
	"github.com/linemk/eshop/internal/notify"
	"github.com/linemk/eshop/internal/payment"
	"github.com/linemk/eshop/internal/service"
	"github.com/linemk/eshop/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	products := newCatalog(application)
	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:        cfg.Payment.SecretKey,
		WebhookSecret:    cfg.Payment.WebhookSecret,
		PostCheckoutURL:  cfg.Payment.PostCheckoutURL,
		AllowedCountries: cfg.Payment.AllowedCountries,
	}, nil)

	var publisher notify.Publisher = notify.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("failed to close kafka writer", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
		log.Info("publishing order events to kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	mergeService := service.NewMergeService(log, application.DB, cartRepo)
	svc := services{
		auth:  service.NewAuthService(log, userRepo, mergeService, cfg.JWT.Secret, cfg.JWT.TTL()),
		carts: service.NewCartService(log, application.DB, cartRepo, products),
		orders: service.NewOrderService(log, application.DB, cartRepo, orderRepo, userRepo, products, gateway, publisher,
			service.OrderConfig{
				PriceLookupConcurrency: cfg.Order.PriceLookupConcurrency,
				CreateAttempts:         cfg.Order.CreateAttempts,
				GatewayTimeout:         cfg.Payment.Timeout,
			}),
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      newRouter(log, cfg.JWT.Secret, svc),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout + cfg.Payment.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}

// newCatalog оборачивает Stripe-каталог кэшем: в памяти процесса или в Redis для нескольких инстансов.
func newCatalog(application *app.App) catalog.Catalog {
	cfg := application.Config.Catalog

	var store catalog.Store
	switch cfg.Cache {
	case config.CatalogCacheRedis:
		store = catalog.NewRedisStore(application.Redis, cfg.TTL)
	default:
		store = catalog.NewMemoryStore(cfg.TTL, cfg.SweepInterval)
	}
	application.Logger.Info("catalog cache configured", slog.String("cache", cfg.Cache), slog.Duration("ttl", cfg.TTL))

	source := catalog.NewStripeSource(application.Config.Payment.SecretKey, nil)
	return catalog.NewCache(application.Logger, source, store)
}
