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

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/auth"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/cache"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/database"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/events"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/spreadsheet"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/handlers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/api/routes"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/application/services"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/repositories"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/secrets"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/utils"
)

func main() {
	// Secrets from Vault land in the environment before config is read
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	if vaultErr != nil {
		log.Fatal().Err(vaultErr).Str("path", vaultResult.Path).Msg("Failed to load secrets from Vault")
	} else if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Strs("loaded", vaultResult.Loaded).Strs("skipped", vaultResult.Skipped).Msg("Vault secrets applied")
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Optional persistence of finished runs
	var batchRepo repositories.BatchRunRepository
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		adapter := database.NewBatchRunAdapter(pgClient)
		if err := adapter.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to create batch_runs schema")
		}
		batchRepo = adapter
		log.Info().Msg("Batch runs will be persisted to PostgreSQL")
	}

	// Redis backs the explanation cache and the cross-instance event bus
	var redisClient *redis.Client
	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing with in-process cache and events")
		} else {
			defer client.Close()
			redisClient = client
			eventBus = events.NewRedisEventBus(client)
			log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
		}
	}
	if eventBus == nil {
		eventBus = events.NewMemoryEventBus()
	}
	cacheProvider := explanationCache(&cfg.Prediction, redisClient)

	// Prediction service
	predictionClient := predictionapi.NewClient(cfg.Prediction.RequestTimeout)
	prober := services.NewEndpointProber(predictionClient, &cfg.Prediction, metrics)
	prober.Start(ctx)
	if err := prober.StartSchedule(ctx, cfg.Prediction.ProbeSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Prediction.ProbeSchedule).Msg("Invalid PREDICTION_PROBE_SCHEDULE")
	}

	var explainer providers.Explainer = services.NewExplanationService(predictionClient, prober, &cfg.Prediction, metrics)
	if cacheProvider != nil {
		explainer = services.NewCachedExplainer(explainer, cacheProvider, cfg.Prediction.CacheTTLSeconds, metrics)
		log.Info().Int("ttl_seconds", cfg.Prediction.CacheTTLSeconds).Msg("Explanation cache enabled")
	}

	normalizer := utils.NewRecordNormalizer()
	if cfg.Prediction.AliasFile != "" {
		normalizer, err = utils.NewRecordNormalizerFromFile(cfg.Prediction.AliasFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Prediction.AliasFile).Msg("Failed to load column aliases")
		}
	}

	samples := services.NewSampleService(cfg.Prediction.SampleDataSource, cfg.Prediction.HealthTimeout)
	batchService := services.NewBatchService(
		spreadsheet.NewReader(),
		normalizer,
		explainer,
		samples,
		eventBus,
		batchRepo,
		metrics,
	)

	// Authentication
	var authenticator providers.Authenticator
	var authHandler *handlers.AuthHandler
	switch cfg.Auth.Mode {
	case "jwt":
		authenticator = auth.NewJWTAuthenticator(&cfg.Auth)
		log.Info().Msg("Authenticating bearer tokens as HS256 JWTs")
	default:
		sessions := auth.NewDevSessionProvider()
		unsubscribe := sessions.OnChange(func(ev providers.SessionEvent) {
			if ev.Principal == nil {
				batchService.ClearWorkspace(ev.UserID)
			}
		})
		defer unsubscribe()
		authenticator = sessions
		authHandler = handlers.NewAuthHandler(sessions)
		log.Warn().Str("email", auth.DemoEmail).Msg("Development sign-in enabled")
	}

	router := routes.NewRouter(
		handlers.NewDashboardHandler(batchService, spreadsheet.NewExporter()),
		handlers.NewStatusHandler(prober),
		handlers.NewSSEHandler(eventBus),
		authHandler,
		authenticator,
		cfg.Server.AllowedOrigins,
		metrics,
	)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads and the SSE stream are long-lived; no WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Strs("prediction_endpoints", cfg.Prediction.Candidates()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Server shutting down...")

	// Stop the probe schedule before draining connections
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("Server stopped")
}

// explanationCache picks Redis when it is connected and the in-process LRU
// otherwise. It returns nil when caching is off.
func explanationCache(cfg *config.PredictionConfig, redisClient *redis.Client) providers.CacheProvider {
	if cfg.CacheTTLSeconds <= 0 {
		return nil
	}
	if redisClient != nil {
		return cache.NewRedisAdapter(redisClient, "readmit:")
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	log.Info().Int("size", cfg.CacheSize).Msg("Using in-process explanation cache")
	return cache.NewMemoryAdapter(cfg.CacheSize, ttl)
}
