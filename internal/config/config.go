package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by MNEMO_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MNEMO_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DataDir is where records, the index, edges, and the lock file live.
// Defaults to "data" relative to the working directory.
func DataDir() string {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		return "data"
	}
	return dir
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "none" so the engine runs text-only out of the box.
// Valid values: openai, ollama, mock, none
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

// EmbeddingDim is the fixed embedding dimension for the whole system.
// Defaults to 384.
func EmbeddingDim() int {
	dim, err := strconv.Atoi(os.Getenv("EMBEDDING_DIM"))
	if err != nil || dim <= 0 {
		return 384
	}
	return dim
}

func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func OllamaURL() string {
	return os.Getenv("OLLAMA_URL")
}

// SweepInterval is how often the maintenance sweep runs.
// Defaults to 1h.
func SweepInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// PruneThreshold is the confidence floor below which a stale memory is
// removed. Defaults to 0.2.
func PruneThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("PRUNE_THRESHOLD"), 64)
	if err != nil || v <= 0 || v >= 1 {
		return 0.2
	}
	return v
}

// PruneGrace is how long a memory must go unaccessed before it can be
// pruned. Defaults to 336h (two weeks).
func PruneGrace() time.Duration {
	d, err := time.ParseDuration(os.Getenv("PRUNE_GRACE"))
	if err != nil || d <= 0 {
		return 14 * 24 * time.Hour
	}
	return d
}

// EventBufferSize bounds the engine's event channel.
// Defaults to 256.
func EventBufferSize() int {
	n, err := strconv.Atoi(os.Getenv("EVENT_BUFFER_SIZE"))
	if err != nil || n <= 0 {
		return 256
	}
	return n
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
