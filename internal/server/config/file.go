package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/flagx"
	"github.com/dmitrijs2005/audionotes/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// "10s" style strings or integer nanoseconds. Only non-zero values override
// what is already in Config.
type FileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr        string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDriver  string         `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN     string         `json:"database_dsn" yaml:"database_dsn"`
	StorageDriver   string         `json:"storage_driver" yaml:"storage_driver"`
	S3Endpoint      string         `json:"s3_endpoint" yaml:"s3_endpoint"`
	S3Region        string         `json:"s3_region" yaml:"s3_region"`
	S3Bucket        string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3AccessKey     string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey     string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3UseSSL        *bool          `json:"s3_use_ssl" yaml:"s3_use_ssl"`
	S3KeyPrefix     string         `json:"s3_key_prefix" yaml:"s3_key_prefix"`
	S3EnsureBucket  *bool          `json:"s3_ensure_bucket" yaml:"s3_ensure_bucket"`
	PresignTTL      timex.Duration `json:"presign_ttl" yaml:"presign_ttl"`
	MetadataTimeout timex.Duration `json:"metadata_timeout" yaml:"metadata_timeout"`
	ChunkTimeout    timex.Duration `json:"chunk_timeout" yaml:"chunk_timeout"`
	MaxUploadBytes  int64          `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaxFrameBytes   int64          `json:"max_frame_bytes" yaml:"max_frame_bytes"`
	KafkaBrokers    []string       `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic      string         `json:"kafka_topic" yaml:"kafka_topic"`
	RedisAddr       string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword   string         `json:"redis_password" yaml:"redis_password"`
	RedisDB         *int           `json:"redis_db" yaml:"redis_db"`
	ProgressTTL     timex.Duration `json:"progress_ttl" yaml:"progress_ttl"`
	AllowedOrigins  []string       `json:"allowed_origins" yaml:"allowed_origins"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	LogFormat       string         `json:"log_format" yaml:"log_format"`
	DefaultOwnerID  string         `json:"default_owner_id" yaml:"default_owner_id"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// parseFile overlays the file given by -c/-config. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON. Read or decode errors
// panic.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc, err := decodeFile(path, data)
	if err != nil {
		panic(err)
	}
	fc.apply(config)
}

func decodeFile(path string, data []byte) (*FileConfig, error) {
	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, err
		}
	}
	return fc, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.GRPCAddr, fc.GRPCAddr)
	setString(&c.DatabaseDriver, fc.DatabaseDriver)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.StorageDriver, fc.StorageDriver)
	setString(&c.S3Endpoint, fc.S3Endpoint)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3AccessKey, fc.S3AccessKey)
	setString(&c.S3SecretKey, fc.S3SecretKey)
	setString(&c.S3KeyPrefix, fc.S3KeyPrefix)
	setString(&c.KafkaTopic, fc.KafkaTopic)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPassword, fc.RedisPassword)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.DefaultOwnerID, fc.DefaultOwnerID)

	if fc.S3UseSSL != nil {
		c.S3UseSSL = *fc.S3UseSSL
	}
	if fc.S3EnsureBucket != nil {
		c.S3EnsureBucket = *fc.S3EnsureBucket
	}
	if fc.RedisDB != nil {
		c.RedisDB = *fc.RedisDB
	}
	if fc.MaxUploadBytes > 0 {
		c.MaxUploadBytes = fc.MaxUploadBytes
	}
	if fc.MaxFrameBytes > 0 {
		c.MaxFrameBytes = fc.MaxFrameBytes
	}
	if len(fc.KafkaBrokers) > 0 {
		c.KafkaBrokers = fc.KafkaBrokers
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}

	if fc.PresignTTL.IsSet() {
		c.PresignTTL = fc.PresignTTL.Duration
	}
	if fc.MetadataTimeout.IsSet() {
		c.MetadataTimeout = fc.MetadataTimeout.Duration
	}
	if fc.ChunkTimeout.IsSet() {
		c.ChunkTimeout = fc.ChunkTimeout.Duration
	}
	if fc.ProgressTTL.IsSet() {
		c.ProgressTTL = fc.ProgressTTL.Duration
	}
	if fc.ShutdownTimeout.IsSet() {
		c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
}
