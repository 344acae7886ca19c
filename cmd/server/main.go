package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aitwin/internal/config"
	"aitwin/internal/database"
	"aitwin/internal/e2b"
	"aitwin/internal/handlers"
	"aitwin/internal/health"
	"aitwin/internal/jobs"
	"aitwin/internal/logging"
	"aitwin/internal/middleware"
	"aitwin/internal/models"
	"aitwin/internal/preflight"
	"aitwin/internal/services"
	"aitwin/internal/tools"
	"aitwin/internal/vectorstore"
	"aitwin/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting AI Twin Server...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	if results := preflight.NewChecker(cfg).RunAll(); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed. Please fix the issues above before starting the server.")
	}

	ctx := context.Background()

	keywords, err := config.LoadIntentKeywords(cfg.IntentKeywordsFile)
	if err != nil {
		log.Printf("⚠️  Using default intent keywords: %v", err)
	}

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	// KV store and short-term memory: Redis when reachable, in-process otherwise
	var (
		redisService *services.RedisService
		kvStore      services.KVStore
		shortTerm    services.ShortTermStore
	)
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis: %v (using in-process cache)", err)
		}
	}
	if redisService != nil {
		defer redisService.Close()
		kvStore = redisService
		shortTerm = services.NewRedisShortTermStore(redisService, cfg.ShortTermCapacity, cfg.ShortTermTTL)
	} else {
		kvStore = services.NewLocalKVStore()
		shortTerm = services.NewInMemoryShortTermStore(cfg.ShortTermCapacity, cfg.ShortTermTTL)
	}

	// Permanent log: MongoDB when configured, SQL otherwise
	var (
		messageLog database.MessageLog
		userStore  database.UserStore
		logPing    handlers.ComponentCheck
		mongoDB    *database.MongoDB
	)
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️  Failed to connect to MongoDB: %v (falling back to SQL log)", err)
		} else if err := mongoDB.Initialize(ctx); err != nil {
			log.Printf("⚠️  Failed to initialize MongoDB: %v", err)
		}
	}
	if mongoDB != nil {
		defer mongoDB.Close(context.Background())
		messageLog = database.NewMongoMessageLog(mongoDB)
		userStore = database.NewMongoUserStore(mongoDB)
		logPing = mongoDB.Ping
	} else if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Printf("⚠️  Failed to open database: %v (permanent log disabled)", err)
		} else if err := db.Initialize(ctx); err != nil {
			log.Printf("⚠️  Failed to initialize database: %v (permanent log disabled)", err)
			db.Close()
		} else {
			defer db.Close()
			messageLog = database.NewSQLMessageLog(db)
			userStore = database.NewSQLUserStore(db)
			logPing = db.PingContext
		}
	}

	// Long-term memory: only when an embedding service is configured
	var (
		vectorStore vectorstore.Store
		vectorPing  handlers.ComponentCheck
	)
	if cfg.EmbeddingURL != "" {
		index, err := vectorstore.OpenIndex(ctx, cfg.VectorDBPath)
		if err != nil {
			log.Printf("⚠️  Failed to open vector index: %v (long-term memory disabled)", err)
		} else {
			embedder := vectorstore.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
			vs := vectorstore.New(embedder, index)
			defer vs.Close()
			vectorStore = vs
			vectorPing = vs.Ping
			log.Printf("✅ Long-term memory enabled (index: %s)", cfg.VectorDBPath)
		}
	} else {
		log.Println("⚠️  EMBEDDING_URL not set - long-term memory disabled")
	}

	longTerm := services.NewLongTermMemory(vectorStore, services.LongTermConfig{
		MinWords:  cfg.LongTermMinWords,
		Threshold: cfg.LongTermThreshold,
		K:         cfg.LongTermK,
	})
	memory := services.NewMemoryManager(messageLog, shortTerm, longTerm)

	// Model backends
	general := services.NewModelBackend(services.ModelBackendConfig{
		Name:          models.BackendGeneral,
		BaseURL:       cfg.GroqBaseURL,
		APIKey:        cfg.GroqAPIKey,
		RequireAPIKey: true,
		DefaultModel:  cfg.GroqModel,
		Temperature:   0.7,
	})
	local := services.NewModelBackend(services.ModelBackendConfig{
		Name:         models.BackendLocal,
		BaseURL:      cfg.OllamaBaseURL,
		DefaultModel: cfg.OllamaDefaultModel,
		Temperature:  0.7,
	})

	healthService := health.NewService(health.NewConnectivityPinger(), 0, 0)
	healthService.RegisterBackend(general.Info())
	healthService.RegisterBackend(local.Info())

	router := services.NewBackendRouter(general, local, general, cfg.GroqFallbackModel, healthService)

	// Tools
	registry := tools.NewRegistry()
	toolList := []*tools.Tool{
		tools.NewTimeTool(),
		tools.NewSearchTool(tools.NewWebSearch(cfg.SearXNGURLs)),
		tools.NewPythonRunnerTool(e2b.NewExecutor(cfg.E2BServiceURL, cfg.E2BAPIKey)),
		tools.NewNotesTool(memory.LongTerm()),
	}
	for _, tool := range toolList {
		if err := registry.Register(tool); err != nil {
			log.Fatalf("❌ Failed to register tool: %v", err)
		}
	}
	log.Printf("🔧 Registered %d tools", registry.Count())

	loop := services.NewReasoningLoop(router, registry, metrics, services.ReasoningLoopConfig{
		MaxToolTurns: cfg.MaxToolTurns,
		TwinName:     cfg.TwinName,
	})

	classifier := services.NewIntentClassifier(keywords)
	if cfg.IntentKeywordsFile != "" {
		watchCtx, stopWatching := context.WithCancel(ctx)
		defer stopWatching()
		if err := config.WatchIntentKeywords(watchCtx, cfg.IntentKeywordsFile, classifier.SetKeywords); err != nil {
			log.Printf("⚠️  Intent keywords hot-reload disabled: %v", err)
		}
	}

	policies := services.NewPolicyTable(cfg.CacheTTLFactual, cfg.CacheTTLDefault)
	orchestrator := services.NewChatOrchestrator(
		classifier,
		policies,
		services.NewResponseCache(kvStore, policies, metrics),
		memory,
		loop,
		metrics,
		services.ChatOrchestratorConfig{
			TwinName:       cfg.TwinName,
			RequestTimeout: cfg.RequestTimeout,
		},
	)

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if err := jobScheduler.Register("backend_health_check", cfg.HealthCheckInterval, jobs.NewBackendHealthChecker(healthService, time.Second)); err != nil {
		log.Printf("⚠️  Failed to register backend health check: %v", err)
	}
	jobScheduler.Start()
	log.Println("✅ Background job scheduler started")

	// Auth
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "AI Twin v1.0",
		ReadTimeout:  cfg.RequestTimeout + 30*time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  5 * time.Minute,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("aitwin")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Chat=%d/min, Webhook=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.ChatMax,
		rateLimitConfig.WebhookMax,
	)

	// Health
	healthHandler := handlers.NewHealthHandler("hybrid_brain (Groq + Ollama)", healthService)
	if redisService != nil {
		healthHandler.AddComponent("redis", redisService.Ping)
	} else {
		healthHandler.AddComponent("redis", nil)
	}
	healthHandler.AddComponent("vector", vectorPing)
	healthHandler.AddComponent("log", logPing)
	app.Get("/health", healthHandler.Handle)

	// API routes
	api := app.Group("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	authMiddleware := middleware.LocalAuthMiddleware(jwtAuth, cfg.Environment)
	chatHandler := handlers.NewChatHandler(orchestrator)
	memoryHandler := handlers.NewMemoryHandler(orchestrator.Memory())

	api.Post("/chat", authMiddleware, middleware.ChatRateLimiter(rateLimitConfig), chatHandler.Chat)
	api.Get("/memory/stats", authMiddleware, memoryHandler.GetStats)

	if jwtAuth != nil && userStore != nil {
		authHandler := handlers.NewAuthHandler(userStore, jwtAuth)
		api.Post("/auth/register", authHandler.Register)
		api.Post("/auth/login", authHandler.Login)
		log.Println("👤 Account registration and login enabled")
	}

	if cfg.EnableDevTokens && jwtAuth != nil && !cfg.IsProduction() {
		api.Post("/auth/token", handlers.NewDevTokenHandler(jwtAuth).IssueToken)
		log.Println("🔑 Development token endpoint enabled at /api/auth/token")
	}

	// Telegram relay
	telegram := services.NewTelegramClient(cfg.TelegramBotToken, "")
	if telegram.Enabled() && cfg.TwinOwnerID != "" {
		relay := services.NewTelegramRelay(orchestrator, telegram, cfg.TwinOwnerID)
		app.Post("/webhook/telegram",
			middleware.WebhookRateLimiter(rateLimitConfig),
			handlers.NewTelegramWebhookHandler(relay).Webhook,
		)
		log.Printf("📨 Telegram relay enabled for owner %s", cfg.TwinOwnerID)
	} else {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN or TWIN_OWNER_ID not set - Telegram relay disabled")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️  Error stopping job scheduler: %v", err)
		}

		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
