package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "AUDIONOTES_"

// parseEnv overlays AUDIONOTES_* variables. Unparsable numbers, booleans and
// durations are ignored and the previous value is kept.
func parseEnv(c *Config) {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)

	c.StorageDriver = getEnv("STORAGE_DRIVER", c.StorageDriver)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3UseSSL = getEnvBool("S3_USE_SSL", c.S3UseSSL)
	c.S3KeyPrefix = getEnv("S3_KEY_PREFIX", c.S3KeyPrefix)
	c.S3EnsureBucket = getEnvBool("S3_ENSURE_BUCKET", c.S3EnsureBucket)
	c.PresignTTL = getEnvDuration("PRESIGN_TTL", c.PresignTTL)

	c.MetadataTimeout = getEnvDuration("METADATA_TIMEOUT", c.MetadataTimeout)
	c.ChunkTimeout = getEnvDuration("CHUNK_TIMEOUT", c.ChunkTimeout)
	c.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.MaxFrameBytes = getEnvInt64("MAX_FRAME_BYTES", c.MaxFrameBytes)

	c.KafkaBrokers = getEnvList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = int(getEnvInt64("REDIS_DB", int64(c.RedisDB)))
	c.ProgressTTL = getEnvDuration("PROGRESS_TTL", c.ProgressTTL)

	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.DefaultOwnerID = getEnv("DEFAULT_OWNER_ID", c.DefaultOwnerID)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

// splitList splits a comma separated value and drops blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
