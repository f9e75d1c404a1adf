// Package app wires the catalog components from a Config. The API server
// and the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"coursecatalog/internal/clients"
	"coursecatalog/internal/config"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
	"coursecatalog/internal/service"
	"coursecatalog/internal/worker"
	"coursecatalog/pkg/database"
	redispkg "coursecatalog/pkg/redis"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config

	DB    *gorm.DB
	Redis *redis.Client
	Queue *queue.Queue

	CourseRepo repository.CourseRepository
	DraftRepo  repository.DraftRepository
	CacheRepo  repository.CacheRepository

	Query   *service.QueryEngine
	Export  *service.ExportService
	Courses *service.CourseService
	Drafts  *service.DraftService
}

// New connects the stores and builds the services. Redis is not required
// to be reachable: dispatch then degrades to inline processing.
func New(cfg *config.Config) (*App, error) {
	db, err := database.Connect(database.Config{
		Driver:   cfg.DB.Driver,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
		Path:     cfg.DB.Path,
		Debug:    cfg.App.Debug,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	redisConfig := redispkg.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient, err := redispkg.Connect(redisConfig)
	if err != nil {
		log.Printf("warning: %v; task dispatch will fall back to inline processing", err)
		redisClient = redispkg.NewClient(redisConfig)
	}

	a := &App{Config: cfg, DB: db, Redis: redisClient}
	a.build()
	return a, nil
}

func (a *App) build() {
	cfg := a.Config

	a.Queue = queue.New(a.Redis, queue.Config{
		Name:      cfg.Queue.Name,
		ResultTTL: cfg.Queue.ResultTTL,
	})

	a.CourseRepo = repository.NewCourseRepository(a.DB)
	a.DraftRepo = repository.NewDraftRepository(a.Redis, cfg.Drafts.TTL)
	a.CacheRepo = repository.NewCacheRepository(a.Redis)

	enricher := clients.NewOpenAIEnricher(clients.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		BaseURL:        cfg.OpenAI.BaseURL,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
		ContextChars:   cfg.OpenAI.ContextChars,
		RequestsPerMin: cfg.OpenAI.RequestsPerMin,
	})

	var publisher service.Publisher
	if cfg.Export.PublishSFTP {
		publisher = clients.NewSFTPPublisher(clients.SFTPConfig{
			Host:      cfg.SFTP.Host,
			Port:      cfg.SFTP.Port,
			User:      cfg.SFTP.User,
			Password:  cfg.SFTP.Password,
			RemoteDir: cfg.SFTP.RemoteDir,
		})
		log.Printf("Mirror publishing enabled: sftp://%s:%d%s", cfg.SFTP.Host, cfg.SFTP.Port, cfg.SFTP.RemoteDir)
	}

	a.Query = service.NewQueryEngine(a.CourseRepo, a.CacheRepo, cfg.Export.FacetsTTL)
	a.Export = service.NewExportService(a.CourseRepo, service.ExportConfig{
		CoursesPath: cfg.Export.CoursesPath,
		XLSXPath:    cfg.Export.XLSXPath,
	}, publisher)

	a.CourseRepo.AfterCommit(a.Query.InvalidateFacets)
	a.CourseRepo.AfterCommit(a.Export.OnCommit)

	a.Courses = service.NewCourseService(a.CourseRepo, a.Query, a.Queue, enricher, cfg.Queue.TaskTimeout)
	a.Drafts = service.NewDraftService(a.DraftRepo, a.Courses, enricher, a.Queue)
}

// TaskHandlers collects the queue handlers of every service.
func (a *App) TaskHandlers() map[string]service.TaskHandler {
	handlers := make(map[string]service.TaskHandler)
	for _, group := range []map[string]service.TaskHandler{
		a.Courses.TaskHandlers(),
		a.Drafts.TaskHandlers(),
		a.Export.TaskHandlers(),
	} {
		for name, h := range group {
			handlers[name] = h
		}
	}
	return handlers
}

// NewTaskWorker returns a queue consumer serving every task handler.
func (a *App) NewTaskWorker() *worker.TaskWorker {
	w := worker.NewTaskWorker(a.Queue, a.Config.Queue.Concurrency)
	w.Register(a.TaskHandlers())
	return w
}

// Seed imports the mirror into an empty store when SEED_ON_START is set.
func (a *App) Seed(ctx context.Context) {
	if !a.Config.Export.SeedOnStart {
		return
	}
	inserted, err := a.Export.SeedIfEmpty(ctx)
	if err != nil {
		log.Printf("warning: failed to seed from %s: %v", a.Config.Export.CoursesPath, err)
		return
	}
	if inserted > 0 {
		log.Printf("Seeded %d courses from %s", inserted, a.Config.Export.CoursesPath)
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	closeDB(a.DB)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// ShutdownTimeout bounds graceful stops of the server and the workers.
const ShutdownTimeout = 10 * time.Second

// NewScheduler returns a scheduler holding the workers enabled in the
// configuration.
func (a *App) NewScheduler() *worker.Scheduler {
	scheduler := worker.NewScheduler(ShutdownTimeout)

	if a.Config.Workers.TasksEnabled {
		scheduler.AddWorker(a.NewTaskWorker())
		log.Printf("Task worker enabled (concurrency: %d)", a.Config.Queue.Concurrency)
	}
	if a.Config.Workers.ExportEnabled {
		scheduler.AddWorker(worker.NewMirrorWorker(a.Export, a.Config.Workers.ExportInterval))
		log.Printf("Mirror worker enabled (interval: %v)", a.Config.Workers.ExportInterval)
	}
	return scheduler
}
