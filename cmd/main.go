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

	"coursecatalog/internal/app"
	"coursecatalog/internal/config"
	"coursecatalog/internal/handlers"
	"coursecatalog/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	log.Println("=== Course Catalog Backend Starting ===")

	cfg := config.Load()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer a.Close()

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), time.Minute)
	a.Seed(seedCtx)
	cancelSeed()

	scheduler := a.NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting is off in debug mode.
	if !cfg.App.Debug {
		r.Use(middleware.RateLimiters(
			cfg.RateLimit.GlobalRequestsPerSecond, cfg.RateLimit.GlobalBurst,
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst,
		)...)
		log.Printf("Rate limiting enabled: %d req/sec global (burst %d), %d req/sec per IP (burst %d)",
			cfg.RateLimit.GlobalRequestsPerSecond, cfg.RateLimit.GlobalBurst,
			cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	handlers.RegisterRoutes(r.Group("/api/v1"),
		handlers.NewCourseHandler(a.Courses, a.Export),
		handlers.NewDraftHandler(a.Drafts),
		handlers.NewSystemHandler(a.CourseRepo, a.Queue, a.Redis, scheduler),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Queue.TaskTimeout + cfg.OpenAI.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.App.Port)
		log.Printf("API available at http://localhost:%s/api/v1", cfg.App.Port)
		log.Printf("Health check: http://localhost:%s/api/v1/health", cfg.App.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server forced to shutdown:", err)
	}

	log.Println("Server exited properly")
}
