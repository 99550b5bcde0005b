package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Transcription TranscriptionConfig
	AI            AIConfig
	Processing    ProcessingConfig
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StorageConfig struct {
	Bucket       string
	Region       string
	DataPath     string
	TempDir      string
	ManifestPath string
}

type TranscriptionConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type AIConfig struct {
	GatewayURL string
	APIKey     string
	Model      string
	Timeout    time.Duration
}

type ProcessingConfig struct {
	WorkerPoolSize   int
	TaskTimeout      time.Duration
	BatchConcurrency int
	RetryDelay       time.Duration
}

// Load reads .env (if present) and assembles configuration from the
// environment with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:         ":" + envOr("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Storage: StorageConfig{
			Bucket:       envOr("RECORDINGS_BUCKET", "call-recordings"),
			Region:       envOr("AWS_REGION", "us-east-1"),
			DataPath:     envOr("DATA_PATH", "./data"),
			TempDir:      envOr("TEMP_DIR", os.TempDir()),
			ManifestPath: os.Getenv("MANIFEST_PATH"),
		},
		Transcription: TranscriptionConfig{
			APIURL:  envOr("TRANSCRIBE_API_URL", "https://api.openai.com/v1/audio/transcriptions"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envOr("TRANSCRIBE_MODEL", "whisper-1"),
			Timeout: envDuration("TRANSCRIBE_TIMEOUT", 120*time.Second),
		},
		AI: AIConfig{
			GatewayURL: envOr("LLM_GATEWAY_URL", "https://api.openai.com/v1/chat/completions"),
			APIKey:     envOr("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:      envOr("LLM_MODEL", "gpt-4o-mini"),
			Timeout:    envDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Processing: ProcessingConfig{
			WorkerPoolSize:   envInt("WORKER_POOL_SIZE", 4),
			TaskTimeout:      envDuration("TASK_TIMEOUT", 5*time.Minute),
			BatchConcurrency: envInt("BATCH_CONCURRENCY", 3),
			RetryDelay:       envDuration("RETRY_DELAY", 2*time.Second),
		},
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
