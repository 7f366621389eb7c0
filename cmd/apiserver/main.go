package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"remindify/internal/auth"
	"remindify/internal/config"
	"remindify/internal/handlers/apiserver"
	appKafka "remindify/internal/kafka"
	kafkahandlers "remindify/internal/kafka/handlers"
	"remindify/internal/middleware"
	appRedis "remindify/internal/redis"
	"remindify/internal/services"
	"remindify/internal/storage"
)

func main() {
	// 1. Load configuration; a local .env feeds the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not read .env: %v", err)
	}
	cfg, err := config.LoadConfig(os.Getenv("REMINDIFY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("%s %s starting", cfg.AppName, cfg.AppVersion)

	// 2. Database
	db, err := storage.InitDB(cfg.Database, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 3. Redis: token blacklist and re-request cooldown
	var (
		tokenBlacklist auth.TokenBlacklist
		cooldown       services.CooldownTracker
	)
	if cfg.Redis.Enabled {
		redisClient, err := appRedis.NewClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		tokenBlacklist = appRedis.NewRedisTokenBlacklist(redisClient)
		cooldown = appRedis.NewRerequestCooldown(redisClient)
		log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
	} else {
		log.Println("Redis disabled: logout will not revoke tokens and the re-request cooldown is off")
	}

	// 4. Repositories
	userRepo := storage.NewGormUserRepository(db)
	connRepo := storage.NewGormConnectionRepository(db)
	reminderRepo := storage.NewGormReminderRepository(db)
	eventRepo := storage.NewGormConnectionEventRepository(db)

	// 5. Services
	auditService := services.NewAuditService(eventRepo)

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	var background sync.WaitGroup

	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
		publisher = services.NewKafkaEventPublisher(producer, cfg.Kafka.ConnectionEventsTopic)

		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to create Kafka consumer: %v", err)
		}
		defer consumer.Close()

		eventConsumer := kafkahandlers.NewConnectionEventConsumer(auditService)
		background.Add(1)
		go func() {
			defer background.Done()
			topics := []string{cfg.Kafka.ConnectionEventsTopic}
			if err := consumer.Consume(bgCtx, topics, cfg.Kafka.ConsumerGroup, eventConsumer.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Connection event consumer stopped with error: %v", err)
			}
		}()
		log.Printf("Kafka enabled: connection events go through topic %s", cfg.Kafka.ConnectionEventsTopic)
	} else {
		publisher = services.NewDirectEventPublisher(auditService)
	}

	authService := services.NewAuthService(userRepo, tokenBlacklist, cfg.Auth)
	userService := services.NewUserService(userRepo)
	connService := services.NewConnectionService(userRepo, connRepo, publisher, cooldown, cfg.Circle)
	reminderService := services.NewReminderService(reminderRepo, userRepo, connRepo, cfg.Reminder)

	// 6. HTTP routes
	limiter := middleware.NewUserRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	background.Add(1)
	go func() {
		defer background.Done()
		limiter.Run(bgCtx, time.Minute)
	}()

	r := mux.NewRouter()
	apiserver.RegisterRoutes(r, apiserver.Handlers{
		Auth:     apiserver.NewAuthHandler(authService),
		User:     apiserver.NewUserHandler(userService),
		Circle:   apiserver.NewCircleHandler(connService, auditService),
		Reminder: apiserver.NewReminderHandler(reminderService),
	},
		middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist),
		limiter,
	)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	handler := handlers.CombinedLoggingHandler(os.Stdout, handlers.CORS(corsOptions...)(r))

	// 7. Serve with graceful shutdown
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping API server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.APIServer.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("API server forced to shut down: %v", err)
	}

	cancelBackground()
	background.Wait()
	log.Println("API server stopped")
}
