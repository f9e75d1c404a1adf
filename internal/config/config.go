package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	App struct {
		Port        string
		Debug       bool
		FrontendURL string
	}
	DB struct {
		Driver   string
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
		Path     string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	Queue struct {
		Name        string
		TaskTimeout time.Duration
		ResultTTL   time.Duration
		Concurrency int
	}
	Drafts struct {
		TTL time.Duration
	}
	Export struct {
		CoursesPath string
		XLSXPath    string
		SeedOnStart bool
		FacetsTTL   time.Duration
		PublishSFTP bool
	}
	SFTP struct {
		Host      string
		Port      int
		User      string
		Password  string
		RemoteDir string
	}
	OpenAI struct {
		APIKey         string
		Model          string
		BaseURL        string
		RequestTimeout time.Duration
		ContextChars   int
		RequestsPerMin int
	}
	Workers struct {
		TasksEnabled   bool
		ExportEnabled  bool
		ExportInterval time.Duration
	}
	RateLimit struct {
		RequestsPerSecond       int
		Burst                   int
		GlobalRequestsPerSecond int
		GlobalBurst             int
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	// DB
	cfg.DB.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("DB_NAME", "courses")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.Path = getEnv("DB_PATH", "./data/courses.db")

	// Redis
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// Queue
	cfg.Queue.Name = getEnv("QUEUE_NAME", "courses")
	cfg.Queue.TaskTimeout = getEnvAsDuration("TASK_TIMEOUT", 10*time.Second)
	cfg.Queue.ResultTTL = getEnvAsDuration("QUEUE_RESULT_TTL", time.Hour)
	cfg.Queue.Concurrency = getEnvAsInt("WORKER_CONCURRENCY", 4)

	// Drafts
	cfg.Drafts.TTL = getEnvAsDuration("DRAFT_TTL", 24*time.Hour)

	// Export
	cfg.Export.CoursesPath = getEnv("COURSES_PATH", "./data/courses.json")
	cfg.Export.XLSXPath = getEnv("COURSES_XLSX_PATH", "")
	cfg.Export.SeedOnStart = getEnvAsBool("SEED_ON_START", true)
	cfg.Export.FacetsTTL = getEnvAsDuration("FACETS_CACHE_TTL", 10*time.Minute)

	// SFTP mirror publishing
	cfg.SFTP.Host = getEnv("SFTP_HOST", "")
	cfg.SFTP.Port = getEnvAsInt("SFTP_PORT", 22)
	cfg.SFTP.User = getEnv("SFTP_USER", "")
	cfg.SFTP.Password = getEnv("SFTP_PASS", "")
	cfg.SFTP.RemoteDir = getEnv("SFTP_REMOTE_DIR", "/")
	cfg.Export.PublishSFTP = cfg.SFTP.Host != ""

	// OpenAI
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAI.RequestTimeout = getEnvAsDuration("OPENAI_REQUEST_TIMEOUT", 60*time.Second)
	cfg.OpenAI.ContextChars = getEnvAsInt("OPENAI_CONTEXT_CHARS", 6000)
	cfg.OpenAI.RequestsPerMin = getEnvAsInt("RATE_LIMIT_RPM", 60)

	// Workers
	cfg.Workers.TasksEnabled = getEnvAsBool("WORKERS_ENABLED", true)
	cfg.Workers.ExportEnabled = getEnvAsBool("EXPORT_ENABLED", true)
	cfg.Workers.ExportInterval = getEnvAsDuration("WORKER_EXPORT_INTERVAL", 15*time.Minute)

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)
	cfg.RateLimit.GlobalRequestsPerSecond = getEnvAsInt("RATE_LIMIT_GLOBAL_RPS", 200)
	cfg.RateLimit.GlobalBurst = getEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 400)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") and bare seconds ("10").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
