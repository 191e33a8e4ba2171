package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"cinegenius-server/internal/ai"
	"cinegenius-server/internal/config"
	"cinegenius-server/internal/database"
	"cinegenius-server/internal/handler"
	"cinegenius-server/internal/logger"
	"cinegenius-server/internal/messaging"
	"cinegenius-server/internal/middleware"
	"cinegenius-server/internal/migration"
	"cinegenius-server/internal/service"
	"cinegenius-server/internal/session"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск CineGenius Server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Service:  "cinegenius-server",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel), zap.String("env", cfg.Env))

	ctx := context.Background()

	// --- Журнал генераций (PostgreSQL, опционально) ---
	var journal database.GenerationResultRepository
	var recorder ai.ResultRecorder
	if cfg.JournalEnabled() {
		pool, err := setupDatabase(ctx, cfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
		}
		defer pool.Close()
		repo := database.NewPgGenerationResultRepository(pool, zapLogger)
		journal = repo
		recorder = repo
	} else {
		zapLogger.Info("DB_HOST not set, generation journal disabled")
	}

	// --- Генеративный бэкенд ---
	backend, err := ai.NewClient(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create AI client", zap.Error(err))
	}
	client := ai.WithJournal(backend, recorder, zapLogger)

	// --- Снимки сессий (Redis, опционально) ---
	var store session.SnapshotStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer redisClient.Close()
		store = session.NewRedisStore(redisClient, zapLogger)
		zapLogger.Info("Session snapshots stored in Redis", zap.String("addr", cfg.RedisAddr))
	}

	// --- События сессий: websocket + RabbitMQ (опционально) ---
	hub := handler.NewEventHub(zapLogger)
	publishers := messaging.Fanout{hub}
	var rabbitConn *amqp.Connection
	if cfg.RabbitMQURL != "" {
		rabbitConn, err = messaging.ConnectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		rabbitPublisher, err := messaging.NewRabbitMQEventPublisher(rabbitConn, cfg.ArtifactEventsQueue, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create RabbitMQ event publisher", zap.Error(err))
		}
		defer rabbitPublisher.Close()
		publishers = append(publishers, rabbitPublisher)
	}

	// --- Сервисы ---
	sessions := session.NewManager(store, cfg.SessionTTL, zapLogger)
	sessions.StartJanitor(janitorInterval)
	orchestrator := service.NewOrchestrator(client, zapLogger)
	workflow := service.NewWorkflow(orchestrator, sessions, publishers, cfg.ImageConcurrency, zapLogger)
	apiHandler := handler.NewHandler(orchestrator, workflow, journal, hub, cfg.GetAllowedOrigins(), zapLogger)

	// --- HTTP ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ZapLoggingMiddlewareForGin(zapLogger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg, zapLogger)))
	router.Use(middleware.MaxBodyBytes(cfg.MaxBodyBytes))

	p := ginprometheus.NewPrometheus("gin")
	// session id в пути не должен попадать в label
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if route := c.FullPath(); route != "" {
			return route
		}
		return "unmatched"
	}
	router.Use(p.HandlerFunc())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions.Len(), "backend": client.Backend()})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	apiHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	// Раскадровки в фоне дорисовываются до таймаута
	if err := workflow.Wait(shutdownCtx); err != nil {
		zapLogger.Warn("Background storyboard rendering did not finish before shutdown", zap.Error(err))
	}
	hub.Close()
	sessions.Close()

	zapLogger.Info("Server exiting")
}

// setupDatabase подключается к PostgreSQL и применяет миграции журнала.
func setupDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := migration.NewMigrator(pool, logger).Up(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func corsConfig(cfg *config.Config, logger *zap.Logger) cors.Config {
	corsCfg := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	} else {
		corsCfg.AllowAllOrigins = true
		logger.Info("CORS_ALLOWED_ORIGINS not set, allowing all origins")
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsCfg.ExposeHeaders = []string{"X-Request-ID"}
	corsCfg.MaxAge = 12 * time.Hour
	return corsCfg
}
