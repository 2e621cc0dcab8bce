package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medsim-inc/medsim-engine/pkg/agent"
	"github.com/medsim-inc/medsim-engine/pkg/auth"
	"github.com/medsim-inc/medsim-engine/pkg/config"
	"github.com/medsim-inc/medsim-engine/pkg/database"
	"github.com/medsim-inc/medsim-engine/pkg/handlers"
	"github.com/medsim-inc/medsim-engine/pkg/livekit"
	"github.com/medsim-inc/medsim-engine/pkg/llm"
	"github.com/medsim-inc/medsim-engine/pkg/logging"
	"github.com/medsim-inc/medsim-engine/pkg/middleware"
	"github.com/medsim-inc/medsim-engine/pkg/personas"
	"github.com/medsim-inc/medsim-engine/pkg/repositories"
	"github.com/medsim-inc/medsim-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	connString := cfg.Database.ConnectionString()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(connString)),
		zap.String("livekit_url", cfg.LiveKit.URL),
		zap.String("ai_provider", cfg.AI.Provider))

	if err := database.RunMigrations(connString, cfg.Database.MigrationsPath, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connString,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	visitRepo := repositories.NewVisitRepository(db)
	scenarioRepo := repositories.NewScenarioRepository(db)
	doctorRepo := repositories.NewDoctorRepository(db)
	transcriptRepo := repositories.NewTranscriptRepository(db)
	evaluationRepo := repositories.NewEvaluationRepository(db)

	roomClient := livekit.NewRoomClient(&cfg.LiveKit, logger)
	egressClient := livekit.NewEgressClient(&cfg.LiveKit, logger)
	tokenIssuer := livekit.NewTokenIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.JoinTokenTTL)

	supervisor := agent.NewSupervisor(&cfg.Agent, cfg.Auth.ServiceToken, logger)

	catalog, err := personas.Load(cfg.Personas.Path)
	if err != nil {
		return err
	}

	chatClient, err := llm.NewChatClient(&cfg.AI, logger)
	if err != nil {
		return err
	}

	visitService := services.NewVisitService(visitRepo, scenarioRepo, doctorRepo,
		roomClient, egressClient, tokenIssuer, supervisor, cfg.LiveKit.URL, logger)
	recordingService := services.NewRecordingService(visitRepo, egressClient, logger)
	transcriptService := services.NewTranscriptService(transcriptRepo, visitRepo, logger)
	chatService := services.NewChatService(visitService, transcriptService, chatClient,
		catalog, cfg.AI.ChatTimeout, logger)
	evaluationService := services.NewEvaluationService(evaluationRepo, visitRepo,
		transcriptRepo, chatClient, cfg.AI.EvaluationTimeout, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return err
	}
	authService := auth.NewAuthService(jwksClient, cfg.Auth.ServiceToken, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewVisitsHandler(visitService, cfg.LiveKit.URL, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewMessagesHandler(transcriptService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewRecordingsHandler(recordingService, visitService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAgentsHandler(visitService, supervisor, tokenIssuer, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewEvaluationsHandler(evaluationService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewCatalogHandler(scenarioRepo, doctorRepo, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting medsim-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		supervisor.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
