package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Snapshot    SnapshotConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Ai          AIConfig
	Collab      CollabConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CollabLogFilePath  string
	CorsAllowedOrigins string
	JwtSecret          string
	NatsURL            string // empty disables outward events
	RedisURL           string
	ServiceName        string
	OtelEnabled        bool
	OtelEndpoint       string  // OTLP/HTTP host:port
	OtelSampleRatio    float64 // fraction of root spans kept
}

type SnapshotConfig struct {
	Backend         string // memory, redis, postgres, minio
	TTL             time.Duration
	CheckpointEvery int
}

type DatabaseConfig struct {
	Connection string
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type AIConfig struct {
	LLMProvider     string // "ollama" or "static"
	LLMModel        string
	OllamaBaseURL   string
	GenerateTimeout time.Duration
}

type CollabConfig struct {
	SendBuffer     int
	MaxMessageSize int64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CollabLogFilePath:  getEnv("COLLAB_LOG_FILE_PATH", "logs/collab.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			ServiceName:        getEnv("OTEL_SERVICE_NAME", "itinerary-collab-be"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			OtelSampleRatio:    getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Snapshot: SnapshotConfig{
			Backend:         getEnv("SNAPSHOT_BACKEND", "memory"),
			TTL:             getEnvAsDuration("SNAPSHOT_TTL", 0),
			CheckpointEvery: getEnvAsInt("SNAPSHOT_CHECKPOINT_EVERY", 50),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "itineraries"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Ai: AIConfig{
			LLMProvider:     getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:        getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 90*time.Second),
		},
		Collab: CollabConfig{
			SendBuffer:     getEnvAsInt("COLLAB_SEND_BUFFER", 256),
			MaxMessageSize: int64(getEnvAsInt("COLLAB_MAX_MESSAGE_SIZE", 1<<20)),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s", "5m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
