package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the pothole detection service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// SAM segmentation sidecar
	SamServiceURL     string
	SamCheckpointPath string
	SamCheckpointURL  string
	SamModelType      string
	SamTimeout        time.Duration

	// Upload storage
	UploadDir   string
	MaxUploadMB int

	// RabbitMQ configuration (empty URL disables publishing)
	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string

	// Rate limiting for the detect endpoint (requests per minute, 0 disables)
	DetectRateLimit int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "potholes"),

		// Server defaults
		Port: getEnv("PORT", "5000"),

		// SAM sidecar defaults
		SamServiceURL:     getEnv("SAM_SERVICE_URL", "http://localhost:8500"),
		SamCheckpointPath: getEnv("SAM_CHECKPOINT_PATH", "uploads/sam_vit_b_01ec64.pth"),
		SamCheckpointURL: getEnv("SAM_CHECKPOINT_URL",
			"https://huggingface.co/lllyasviel/Annotators/resolve/main/sam_vit_b_01ec64.pth"),
		SamModelType: getEnv("SAM_MODEL_TYPE", "vit_b"),
		SamTimeout:   getDurationEnv("SAM_TIMEOUT", 60*time.Second),

		// Upload defaults
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB: getIntEnv("MAX_UPLOAD_MB", 16),

		// RabbitMQ defaults
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "pothole.events"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "pothole.detected"),

		// Rate limit defaults (requests per minute)
		DetectRateLimit: getIntEnv("DETECT_RATE_LIMIT", 30),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
