package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/config"
	"github.com/degun-osint/brainnotfound-go-api/internal/database"
	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/handler"
	"github.com/degun-osint/brainnotfound-go-api/internal/middleware"
	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/internal/repository"
	"github.com/degun-osint/brainnotfound-go-api/internal/router"
	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/pkg/ai"
	"github.com/degun-osint/brainnotfound-go-api/pkg/tokencount"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Quiz{}, &models.Question{}, &models.QuizResponse{}, &models.Answer{},
		&models.Interview{}, &models.EvaluationCriterion{},
		&models.InterviewSession{}, &models.InterviewMessage{}, &models.CriterionScore{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	completer, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: float32(cfg.AITemperature),
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai client: %v", err)
	}
	tokens := tokencount.NewEstimator()

	responseRepo := repository.NewQuizResponseRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	interviewRepo := repository.NewInterviewRepository(db)
	tenantRepo := repository.NewTenantRepository(db)

	dispatcher := dispatch.New(cfg.DispatchWorkers, logger)
	dispatcher.Start()

	notifier := service.NewNotifier(redisClient, natsConn, cfg.EventChannelBase, logger)

	var mailer service.Mailer
	if cfg.SMTPConfigured() {
		mailer = service.NewSMTPMailer(service.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		mailer = service.NewLogMailer(logger)
	}

	quotaService := service.NewQuotaService(tenantRepo, mailer, logger)
	gradingService := service.NewGradingService(responseRepo, quizRepo, completer, dispatcher, notifier, quotaService, logger)
	interviewService := service.NewInterviewService(interviewRepo, completer, dispatcher, notifier, quotaService, tokens, logger)
	anomalyService := service.NewAnomalyService(responseRepo, quizRepo, completer, dispatcher, quotaService, logger)

	gradingHandler := handler.NewGradingHandler(gradingService, validate, logger)
	interviewHandler := handler.NewInterviewHandler(interviewService, validate, logger)
	anomalyHandler := handler.NewAnomalyHandler(anomalyService, logger)
	tenantHandler := handler.NewTenantHandler(quotaService, logger)
	eventHandler := handler.NewEventHandler(notifier, logger, cfg.StreamKeepAlive)

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	notifier.Start(runCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:   gradingHandler,
		InterviewHandler: interviewHandler,
		AnomalyHandler:   anomalyHandler,
		TenantHandler:    tenantHandler,
		EventHandler:     eventHandler,
		JWTMiddleware:    middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, dispatcher)
}

func waitForShutdown(app *fiber.App, dispatcher *dispatch.Dispatcher) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// In-flight grading and evaluation jobs get the rest of the window to
	// finish or finalize into their error states.
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Printf("dispatcher shutdown incomplete: %v", err)
	}

	log.Println("server stopped")
}
