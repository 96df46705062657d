package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/discount"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/kafka"
	"storefront/pkg/rabbitmq"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped with error", zap.Error(err))
	}
	lg.Info("server gracefully stopped")
}

func run(ctx context.Context, cfg config.Config, lg *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	publisher, closePublisher, err := buildPublisher(cfg.Events, lg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePublisher(); err != nil {
			lg.Warn("failed to close event publisher", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app := NewApp(cfg, lg, db, publisher, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("starting server", zap.String("addr", cfg.AppPort), zap.String("events", cfg.Events.Backend))
		if err := app.Listen(cfg.AppPort); err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// NewApp wires storage, services and HTTP routes into a fiber app.
func NewApp(cfg config.Config, lg *zap.Logger, db *gorm.DB, publisher events.Publisher, registry *prometheus.Registry) *fiber.App {
	m := metrics.NewWithRegisterer(registry)
	store := repositories.NewGORMStore(db,
		repositories.WithMaxRetries(cfg.Orders.MaxTxRetries),
		repositories.WithRetryHook(m.RecordTxRetry),
	)

	authService := services.NewAuthService(store.Users(), cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime, lg)
	orderService := services.NewOrderService(store, publisher, m, lg, services.OrderPolicy{
		ReverseDiscountUsageOnCancel: cfg.Orders.ReverseDiscountOnCancel,
		CapFixedDiscountToSubtotal:   cfg.Orders.CapFixedDiscount,
	})
	discountService := services.NewDiscountService(store.Discounts(), lg, discount.Policy{
		CapFixedToSubtotal: cfg.Orders.CapFixedDiscount,
	})
	shipmentService := services.NewShipmentService(store, publisher, m, lg)

	app := fiber.New(fiber.Config{
		AppName:               "storefront",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		code, status, dbStatus := fiber.StatusOK, "healthy", "up"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			code, status, dbStatus = fiber.StatusServiceUnavailable, "unhealthy", "down"
		}
		return c.Status(code).JSON(fiber.Map{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"events":   cfg.Events.Backend,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	handlers.NewAuthHandler(authService, lg).RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService, lg))
	handlers.NewOrderHandler(orderService, lg).RegisterRoutes(protected)
	handlers.NewDiscountHandler(discountService, lg).RegisterRoutes(protected)
	handlers.NewShipmentHandler(shipmentService, lg).RegisterRoutes(protected)

	return app
}

// buildPublisher connects the configured event backend. The returned close
// function is always non-nil.
func buildPublisher(cfg config.Events, lg *zap.Logger) (events.Publisher, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Backend {
	case "rabbitmq":
		client, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.Exchange,
			Queue:    cfg.Queue,
		}, lg.Named("rabbitmq"))
		if err != nil {
			return nil, noClose, err
		}
		// Audit consumer: logs every order and shipment event it sees.
		if err := client.ConsumeOrderEvents(rabbitmq.LogHandler(lg.Named("order-events"))); err != nil {
			client.Close()
			return nil, noClose, err
		}
		return events.NewSinkPublisher(client), client.Close, nil

	case "kafka":
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers:  cfg.KafkaBroker,
			Topic:    cfg.KafkaTopic,
			ClientID: "storefront",
		}, lg)
		if err != nil {
			return nil, noClose, err
		}
		return events.NewSinkPublisher(producer), producer.Close, nil
	}

	lg.Info("event publishing disabled")
	return events.Nop{}, noClose, nil
}
