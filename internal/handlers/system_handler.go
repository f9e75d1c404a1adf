package handlers

import (
	"context"
	"net/http"
	"time"

	"coursecatalog/internal/queue"
	"coursecatalog/internal/repository"
	redisstats "coursecatalog/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// WorkerStatus reports whether background workers are running.
type WorkerStatus interface {
	IsRunning() bool
}

type SystemHandler struct {
	courses repository.CourseRepository
	queue   *queue.Queue
	redis   *redis.Client
	workers WorkerStatus
}

func NewSystemHandler(courses repository.CourseRepository, q *queue.Queue, client *redis.Client, workers WorkerStatus) *SystemHandler {
	return &SystemHandler{courses: courses, queue: q, redis: client, workers: workers}
}

func (h *SystemHandler) redisStatus(ctx context.Context) string {
	if h.redis == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return "unavailable"
	}
	return "connected"
}

// Health GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	database := "connected"
	if _, err := h.courses.Count(ctx, repository.CourseFilter{}); err != nil {
		database = "unavailable"
	}

	status := "ok"
	if database != "connected" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"database": database,
			"redis":    h.redisStatus(ctx),
		},
	})
}

// Stats GET /system/stats
func (h *SystemHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	courseCount, err := h.courses.Count(ctx, repository.CourseFilter{})
	if err != nil {
		respondError(c, err)
		return
	}

	var pending int64
	if h.queue != nil {
		pending, _ = h.queue.Len(ctx)
	}

	var redisInfo map[string]string
	if h.redis != nil {
		redisInfo, _ = redisstats.GetStats(h.redis)
	}

	running := false
	if h.workers != nil {
		running = h.workers.IsRunning()
	}

	c.JSON(http.StatusOK, gin.H{
		"database": gin.H{
			"courses": courseCount,
		},
		"queue": gin.H{
			"pending": pending,
		},
		"redis": redisInfo,
		"workers": gin.H{
			"running": running,
		},
	})
}
