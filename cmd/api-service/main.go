package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MagnunAVF/shortlinks/internal/access"
	"github.com/MagnunAVF/shortlinks/internal/analytics"
	"github.com/MagnunAVF/shortlinks/internal/config"
	"github.com/MagnunAVF/shortlinks/internal/geo"
	"github.com/MagnunAVF/shortlinks/internal/httpapi"
	"github.com/MagnunAVF/shortlinks/internal/links"
	applog "github.com/MagnunAVF/shortlinks/internal/logger"
	"github.com/MagnunAVF/shortlinks/internal/metrics"
	"github.com/MagnunAVF/shortlinks/internal/notify"
	"github.com/MagnunAVF/shortlinks/internal/review"
	"github.com/MagnunAVF/shortlinks/internal/roles"
	"github.com/MagnunAVF/shortlinks/internal/safety"
	"github.com/MagnunAVF/shortlinks/internal/shortcode"
	"github.com/MagnunAVF/shortlinks/internal/store"
	"github.com/MagnunAVF/shortlinks/internal/visits"
)

func main() {
	cfg := config.Load()
	applog.InitFromEnv()
	ctx := context.Background()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         applog.NewGormLogger(cfg.GormLogLevel),
		TranslateError: true,
	})
	if err != nil {
		slog.Error("Unable to connect to database", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "err", err)
		os.Exit(1)
	}

	rabbitConn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	defer rabbitCH.Close()

	publisher, err := notify.NewAMQP(rabbitCH, cfg.VisitQueue, cfg.NotifyQueue)
	if err != nil {
		slog.Error("Failed to declare queues", "err", err)
		os.Exit(1)
	}

	st := store.New(db, rdb)
	slog.Info("Running GORM auto-migration")
	if err := st.AutoMigrate(); err != nil {
		slog.Error("Failed to auto-migrate database", "err", err)
		os.Exit(1)
	}

	var locator geo.Locator = geo.Nop{}
	if cfg.GeoDBPath != "" {
		mm, err := geo.Open(cfg.GeoDBPath)
		if err != nil {
			slog.Error("Failed to open GeoIP database", "path", cfg.GeoDBPath, "err", err)
			os.Exit(1)
		}
		defer mm.Close()
		locator = mm
	}

	blocklist, err := safety.NewBlocklist(cfg.BlocklistPatterns, st)
	if err != nil {
		slog.Error("Invalid blocklist pattern", "err", err)
		os.Exit(1)
	}
	guard := safety.NewGuard(blocklist, safety.NewProbe(cfg.ProbeTimeout))
	oracle := safety.NewOracle(cfg.OracleEndpoint, cfg.OracleAPIKey, cfg.OracleTimeout)

	linkSvc := links.NewService(st, guard, shortcode.New(shortcode.DefaultReserved))
	reviewSvc := review.New(st, oracle, linkSvc, publisher)
	roleSvc := roles.NewService(roles.NewRegistry(linkSvc), st)
	resolver := access.NewResolver(st, st, st)
	recorder := visits.NewRecorder(st, locator, publisher)
	engine := analytics.NewEngine(st)

	app := fiber.New()
	app.Use(applog.FiberMiddleware())
	app.Use(metrics.FiberMiddleware())
	app.Use(cors.New())

	handler := httpapi.New(st, linkSvc, resolver, recorder, engine, reviewSvc, roleSvc, cfg.AppDomain)
	handler.Register(app)

	slog.Info("Starting API service", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}
