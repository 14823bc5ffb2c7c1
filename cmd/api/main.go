package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/config"
	"github.com/ashuthecoder/cybervantage-api/internal/database"
	"github.com/ashuthecoder/cybervantage-api/internal/emailpool"
	"github.com/ashuthecoder/cybervantage-api/internal/handler"
	"github.com/ashuthecoder/cybervantage-api/internal/middleware"
	"github.com/ashuthecoder/cybervantage-api/internal/ratelimit"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
	"github.com/ashuthecoder/cybervantage-api/internal/router"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
	"github.com/ashuthecoder/cybervantage-api/pkg/ai"
	"github.com/ashuthecoder/cybervantage-api/pkg/virustotal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if !cfg.IsProduction() {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db, logger); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; sessions, caches and rate limits stay in process")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable; simulation events will not be published")
		} else {
			defer natsConn.Drain()
		}
	}

	validate := utils.NewValidator()
	pool := emailpool.MustDefault()
	rng := service.NewRandomizer()

	userRepo := repository.NewUserRepository(db)
	emailRepo := repository.NewSimulationEmailRepository(db)
	responseRepo := repository.NewSimulationResponseRepository(db)
	sessionRepo := repository.NewSimulationSessionRepository(db)
	apiLogRepo := repository.NewAPIRequestLogRepository(db)
	threatRepo := repository.NewThreatScanRepository(db)

	governor := service.NewGovernor(cfg.GovernorCooldown, logger)
	monitor := service.NewAPIMonitorService(apiLogRepo, governor, cfg.AIRequestsPerMinute, logger)
	provider := monitor.Wrap(buildProvider(cfg, logger))

	limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "cybervantage:ai", cfg.AIRequestsPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to create ai limiter: %v", err)
	}
	templates := service.NewTemplateSource(pool, rng)

	generator := service.NewEmailGenerator(service.EmailGeneratorConfig{
		Provider:  provider,
		Templates: templates,
		Governor:  governor,
		Limiter:   limiter,
		Recorder:  monitor,
		Random:    rng,
		Logger:    logger,
	})
	grader := service.NewExplanationGrader(service.ExplanationGraderConfig{
		Provider:  provider,
		Templates: templates,
		Renderer:  service.NewFeedbackRenderer(),
		Governor:  governor,
		Limiter:   limiter,
		Recorder:  monitor,
		Cache:     redisClient,
		CacheTTL:  cfg.GradeCacheTTL,
		Logger:    logger,
	})

	simulationService := service.NewSimulationService(service.SimulationServiceConfig{
		Users:     userRepo,
		Emails:    emailRepo,
		Responses: responseRepo,
		Sessions:  sessionRepo,
		Store:     service.NewStateStore(redisClient, cfg.SessionTTL),
		Generator: generator,
		Grader:    grader,
		Governor:  governor,
		Pool:      pool,
		Publisher: service.NewEventPublisher(natsConn, cfg.NATSSubject, logger),
		Machine:   simulation.NewMachine(),
		Logger:    logger,
	})
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := simulationService.SeedPredefined(seedCtx); err != nil {
		cancelSeed()
		log.Fatalf("failed to seed predefined emails: %v", err)
	}
	cancelSeed()

	authService := service.NewAuthService(userRepo, validate, cfg.JWTSecret, cfg.JWTTTL, !cfg.IsProduction(), logger)
	analyticsService := service.NewAnalyticsService(responseRepo, sessionRepo, logger)
	threatService := service.NewThreatService(service.ThreatServiceConfig{
		Scanner: virustotal.NewClient(virustotal.Config{
			APIKey:       cfg.VirusTotalAPIKey,
			BaseURL:      cfg.VirusTotalBaseURL,
			PollAttempts: cfg.VirusTotalPollAttempts,
			PollInterval: cfg.VirusTotalPollInterval,
			Logger:       logger,
		}),
		Scans:       threatRepo,
		Validate:    validate,
		Cache:       redisClient,
		CacheTTL:    cfg.ThreatCacheTTL,
		UploadMaxMB: cfg.UploadMaxMB,
		Logger:      logger,
	})
	schemaService := service.NewSchemaService(db, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins, Production: cfg.IsProduction()})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(authService, simulationService, logger),
		SimulationHandler: handler.NewSimulationHandler(simulationService, validate, logger),
		AnalysisHandler:   handler.NewAnalysisHandler(analyticsService, logger),
		ThreatHandler:     handler.NewThreatHandler(threatService, logger),
		AdminHandler:      handler.NewAdminHandler(monitor, simulationService, schemaService, cfg.MonitorStreamInterval, logger),
		HealthProbes:      healthProbes(db, redisClient),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// buildProvider orders the configured AI providers as primary, secondary, then the rest.
func buildProvider(cfg config.Config, logger zerolog.Logger) ai.Provider {
	available := map[string]ai.Provider{}

	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiProvider(ai.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			Model:          cfg.GeminiModel,
			FallbackModels: cfg.GeminiFallbackModels,
			BaseURL:        cfg.GeminiBaseURL,
			Timeout:        cfg.AITimeout,
			Logger:         logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("gemini provider disabled")
		} else {
			available["gemini"] = gemini
		}
	}

	if cfg.AzureOpenAIKey != "" && cfg.AzureOpenAIEndpoint != "" {
		azure, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:          cfg.AzureOpenAIKey,
			Model:           cfg.AzureOpenAIDeployment,
			AzureEndpoint:   cfg.AzureOpenAIEndpoint,
			AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
			Timeout:         cfg.AITimeout,
			Logger:          logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("azure openai provider disabled")
		} else {
			available["azure"] = azure
		}
	}

	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("openai provider disabled")
		} else {
			available["openai"] = openAI
		}
	}

	ordered := make([]ai.Provider, 0, len(available))
	for _, name := range []string{cfg.AIPrimary, cfg.AISecondary, "gemini", "azure", "openai"} {
		if provider, ok := available[name]; ok {
			ordered = append(ordered, provider)
			delete(available, name)
		}
	}

	chain := ai.NewChainProvider(logger, ordered...)
	if chain == nil {
		logger.Warn().Msg("no ai provider configured; serving template content only")
		return nil
	}
	logger.Info().Str("providers", chain.Name()).Msg("ai providers configured")
	return chain
}

func healthProbes(db *gorm.DB, redisClient *redis.Client) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return probes
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
