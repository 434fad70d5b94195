package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the conversion worker.
type Config struct {
	Port string

	AuthToken string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	TranslateBaseURL      string
	TranslateAPIKey       string
	TranslateTimeoutMS    int
	TranslateDocTimeoutMS int
	TranslateMaxRPS       float64

	SynthesisBaseURL        string
	SynthesisAPIKey         string
	SynthesisTimeoutMS      int
	SynthesisMaxRPS         float64
	SynthesisMaxRetries     int
	SynthesisRetryBackoffMS int

	StorageBaseURL   string
	StorageAPIKey    string
	StorageBucket    string
	StorageCDNURL    string
	StorageTimeoutMS int

	UploadDir      string
	OutputDir      string
	StateDir       string
	PdftotextPath  string
	FfmpegPath     string
	MaxUploadBytes int64

	MaxChunkChars        int
	DispatcherWidth      int
	AssembleMemLimitMB   int
	AssembleBatchSize    int
	ProgressTTLMinutes   int
	ArtifactTTLHours     int
	ArtifactCacheTTLDays int

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string

	WorkerEnabled bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "voxdoc_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "voxdoc_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "voxdoc_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		TranslateBaseURL:      getEnv("TRANSLATE_BASE_URL", ""),
		TranslateAPIKey:       getEnv("TRANSLATE_API_KEY", ""),
		TranslateTimeoutMS:    getEnvInt("TRANSLATE_TIMEOUT_MS", 15000),
		TranslateDocTimeoutMS: getEnvInt("TRANSLATE_DOC_TIMEOUT_MS", 60000),
		TranslateMaxRPS:       getEnvFloat("TRANSLATE_MAX_RPS", 1),

		SynthesisBaseURL:        getEnv("SYNTHESIS_BASE_URL", ""),
		SynthesisAPIKey:         getEnv("SYNTHESIS_API_KEY", ""),
		SynthesisTimeoutMS:      getEnvInt("SYNTHESIS_TIMEOUT_MS", 30000),
		SynthesisMaxRPS:         getEnvFloat("SYNTHESIS_MAX_RPS", 1),
		SynthesisMaxRetries:     getEnvInt("SYNTHESIS_MAX_RETRIES", 3),
		SynthesisRetryBackoffMS: getEnvInt("SYNTHESIS_RETRY_BACKOFF_MS", 2000),

		StorageBaseURL:   getEnv("STORAGE_BASE_URL", ""),
		StorageAPIKey:    getEnv("STORAGE_API_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", "voxdoc-artifacts"),
		StorageCDNURL:    getEnv("STORAGE_CDN_URL", ""),
		StorageTimeoutMS: getEnvInt("STORAGE_TIMEOUT_MS", 30000),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:      getEnv("OUTPUT_DIR", "outputs"),
		StateDir:       getEnv("STATE_DIR", "state"),
		PdftotextPath:  getEnv("PDFTOTEXT_PATH", "pdftotext"),
		FfmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),

		MaxChunkChars:        getEnvInt("MAX_CHUNK_CHARS", 800),
		DispatcherWidth:      getEnvInt("DISPATCHER_WIDTH", 8),
		AssembleMemLimitMB:   getEnvInt("ASSEMBLE_MEM_LIMIT_MB", 32),
		AssembleBatchSize:    getEnvInt("ASSEMBLE_BATCH_SIZE", 16),
		ProgressTTLMinutes:   getEnvInt("PROGRESS_TTL_MINUTES", 60),
		ArtifactTTLHours:     getEnvInt("ARTIFACT_TTL_HOURS", 24),
		ArtifactCacheTTLDays: getEnvInt("ARTIFACT_CACHE_TTL_DAYS", 7),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
