package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/api/handlers"
	redisCache "github.com/sitebot/backend/internal/cache/redis"
	"github.com/sitebot/backend/internal/chat"
	"github.com/sitebot/backend/internal/fetch"
	"github.com/sitebot/backend/internal/ingest"
	"github.com/sitebot/backend/internal/llm"
	"github.com/sitebot/backend/internal/metrics"
	"github.com/sitebot/backend/internal/middleware/ratelimit"
	"github.com/sitebot/backend/internal/middleware/security"
	"github.com/sitebot/backend/internal/middleware/validation"
	"github.com/sitebot/backend/internal/storage/sqlite"
	"github.com/sitebot/backend/pkg/config"
	appLogger "github.com/sitebot/backend/pkg/logger"
)

func main() {
	// .env is optional; viper env overrides pick up whatever it sets.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting sitebot API server")

	if cfg.LLM.APIKey == "" {
		appLogger.Fatal("LLM API key is required", zap.String("setting", "llm.apiKey"))
	}

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var markupCache fetch.MarkupCache
	if cfg.Redis.Enabled {
		cacheClient, err := redisCache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Ingest.CacheTTLMin)*time.Minute,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, markup caching disabled", zap.Error(err))
		} else {
			defer cacheClient.Close()
			markupCache = cacheClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)

	fetcher := fetch.NewFetcher(fetch.Config{
		ScrapeEndpoint: cfg.Scrape.Endpoint,
		ScrapeAPIKey:   cfg.Scrape.APIKey,
		ScrapeTimeout:  time.Duration(cfg.Scrape.TimeoutSec) * time.Second,
		Relays:         cfg.Relay.Endpoints,
		RelayTimeout:   time.Duration(cfg.Relay.TimeoutSec) * time.Second,
		Cache:          markupCache,
	})

	pipeline := ingest.NewPipeline(fetcher, llmClient, sqliteClient)

	manager := chat.NewManager(pipeline, llmClient, sqliteClient, chat.Config{
		MaxUserTurns:   cfg.Chat.MaxUserTurns,
		ConvertDelay:   time.Duration(cfg.Chat.ConvertDelaySec) * time.Second,
		WelcomeMessage: cfg.Chat.WelcomeMessage,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()

	sourceHandler := handlers.NewSourceHandler(manager)
	chatHandler := handlers.NewChatHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(manager)

	api := app.Group("/api/v1")
	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
		Logger:        appLogger.GetLogger(),
	}))

	api.Post("/sources", sourceHandler.CreateSource)
	api.Get("/ingestions", func(c *fiber.Ctx) error {
		records, err := sqliteClient.RecentIngestions(50)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read ingestion records",
			})
		}
		return c.JSON(fiber.Map{"ingestions": records})
	})
	api.Get("/sessions/:id", chatHandler.GetSession)
	api.Post("/sessions/:id/messages", chatHandler.PostMessage)
	api.Post("/sessions/:id/convert", chatHandler.Convert)
	api.Delete("/sessions/:id", chatHandler.DeleteSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
