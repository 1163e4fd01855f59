package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-attendance/internal/attendance"
	"ms-attendance/internal/attendance/actionlog"
	"ms-attendance/internal/attendance/attendance_api"
	attdb "ms-attendance/internal/attendance/db"
	rediswrap "ms-attendance/internal/attendance/redis"
	"ms-attendance/internal/auth"
	"ms-attendance/internal/config"
	"ms-attendance/internal/database/migrations"
	"ms-attendance/internal/kafka"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/sse"
	"ms-attendance/internal/utils"
)

// noopPublisher stands in for Kafka when it is disabled or mocked.
type noopPublisher struct{}

func (noopPublisher) PublishCountChanged(models.CountChangedEvent) error { return nil }

func requestLogger(appLogger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-ID", utils.GenerateRequestID())
			next.ServeHTTP(ww, r)
			appLogger.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

func connectDatabase(cfg *config.Config, appLogger *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	appLogger.LogDatabase("CONNECT", cfg.Database.Database, "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	appLogger := logger.NewLogger()
	defer appLogger.Close()

	cfg := config.Load()
	ctx := context.Background()

	// --- PostgreSQL Setup ---
	bunDB := connectDatabase(cfg, appLogger)
	defer bunDB.Close()

	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: dir, AutoMigrate: true})
		if err := runner.RunMigrations(); err != nil {
			appLogger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
	} else {
		attdb.Migrate(bunDB)
	}

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	appLogger.Info("REDIS", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))

	// --- Kafka Setup ---
	dbLayer := &attdb.DB{Bun: bunDB}

	var publisher attendance.KafkaPublisher = noopPublisher{}
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.CountChanged, cfg.Kafka.Topics.AreaTemplates}); err != nil {
			appLogger.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CountChanged)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AreaTemplates, cfg.Kafka.GroupID)
		defer consumer.Close()
		go consumer.Start(func(event models.AreaTemplateEvent) {
			template := models.AreaTemplate{
				ID:           event.TemplateID,
				VenueID:      event.VenueID,
				Name:         event.Name,
				AreaType:     event.AreaType,
				Capacity:     event.Capacity,
				DisplayOrder: event.DisplayOrder,
				Active:       event.Active,
				UpdatedAt:    utils.UnixTimeToTime(event.UpdatedAt),
			}
			if err := dbLayer.UpsertTemplate(ctx, template); err != nil {
				appLogger.Error("KAFKA", fmt.Sprintf("Failed to apply template update %s: %v", event.TemplateID, err))
				return
			}
			appLogger.LogKafka("CONSUME", cfg.Kafka.Topics.AreaTemplates, fmt.Sprintf("template %s applied", event.TemplateID))
		})
	} else {
		appLogger.Warn("KAFKA", "Kafka disabled, count change events will not be published")
	}

	// --- Initialize Dependencies ---
	emitter := sse.NewAttendanceEmitter()
	writerLease := rediswrap.NewRedis(redisClient)
	service := attendance.NewAttendanceService(dbLayer, writerLease, publisher, emitter)
	actionLog := actionlog.NewActionLog(service)

	handler := &attendance_api.Handler{Service: service, ActionLog: actionLog, Logger: appLogger}
	sseHandler := attendance_api.NewSSEHandler(appLogger, emitter, service)

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Use(requestLogger(appLogger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if os.Getenv("OIDC_ISSUER") != "" {
			r.Use(auth.Middleware(auth.NewSubjectCache(redisClient)))
		} else {
			appLogger.LogSecurity("AUTH_DISABLED", "OIDC_ISSUER not set, running without authentication")
		}

		r.Route("/events", func(r chi.Router) {
			r.Post("/", handler.CreateEvent)
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", handler.GetEvent)
				r.Delete("/", handler.DeleteEvent)
				r.Get("/live", sseHandler.HandleEventAttendance)
				r.Post("/lock", handler.LockEvent)
				r.Post("/unlock", handler.UnlockEvent)
				r.Put("/notes", handler.UpdateEventNotes)

				r.Route("/counters/{counterID}", func(r chi.Router) {
					r.Post("/increment", handler.Increment)
					r.Post("/decrement", handler.Decrement)
					r.Put("/count", handler.SetCount)
					r.Post("/reset", handler.Reset)
					r.Put("/notes", handler.UpdateCounterNotes)
				})
			})
		})

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", handler.ActionState)
			r.Post("/undo", handler.Undo)
			r.Post("/redo", handler.Redo)
		})
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", fmt.Sprintf("Attendance service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	appLogger.Info("SERVER", "Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	appLogger.Info("SERVER", "Attendance service shutdown complete")
}
