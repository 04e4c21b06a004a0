// Single-process mode: API, worker, sqlite database, and filesystem object
// store in one binary. Useful for development and small deployments.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"photo-backend/cmd"
	"photo-backend/internal/api"
	"photo-backend/internal/core"
	"photo-backend/internal/database"
	"photo-backend/internal/messaging"
	"photo-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	Root             string `env:"ROOT" envDefault:"./photo-backend-data"`
	Port             int    `env:"PORT" envDefault:"8001"`
	UploadBucket     string `env:"UPLOAD_BUCKET" envDefault:"uploads"`
	ChunkTargetBytes int64  `env:"CHUNK_TARGET_BYTES" envDefault:"209715200"` // 200MB
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "photo-backend.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// createQueue re-publishes tasks that were queued when the process last
// stopped, so interrupted jobs resume on startup.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	var scanTasks []database.ScanTask
	if err := db.Where("status = ?", database.JobQueued).Find(&scanTasks).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	var processTasks []database.ProcessTask
	if err := db.Where("status = ?", database.JobQueued).Find(&processTasks).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	for _, task := range scanTasks {
		if err := queue.PublishScanTask(context.Background(), messaging.ScanTaskPayload{
			JobId: task.JobId,
		}); err != nil {
			log.Fatalf("Failed to publish scan task: %v", err)
		}
	}

	for _, task := range processTasks {
		if err := queue.PublishProcessTask(context.Background(), messaging.ProcessTaskPayload{
			JobId:  task.JobId,
			TaskId: task.TaskId,
		}); err != nil {
			log.Fatalf("Failed to publish process task: %v", err)
		}
	}

	return queue
}

func createServer(db *gorm.DB, store storage.ObjectStore, queue messaging.Publisher, cfg Config) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, queue, cfg.UploadBucket, cfg.ChunkTargetBytes)

	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)

	if err := cmd.SeedBuiltinPresets(db); err != nil {
		log.Fatalf("Failed to seed builtin presets: %v", err)
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}
	if err := store.CreateBucket(context.Background(), cfg.UploadBucket); err != nil {
		log.Fatalf("Failed to create upload bucket: %v", err)
	}

	queue := createQueue(db)

	worker := core.NewTaskProcessor(db, store, queue, queue, cfg.UploadBucket)

	server := createServer(db, store, queue, cfg)

	slog.Info("starting worker")
	go worker.Start()

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
