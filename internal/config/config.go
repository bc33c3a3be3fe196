// Package config loads the collector's configuration: environment variables
// are the only required source, with an optional single YAML file read
// before the environment is applied as an overlay of defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CRASHCOLLECTOR_"

// Config holds every stringly-typed-from-environment option the collector
// accepts, plus backend-specific settings namespaced per plugin.
type Config struct {
	DumpField             string `yaml:"dump_field"`
	DumpIDPrefix          string `yaml:"dump_id_prefix"`
	ConcurrentCrashmovers int    `yaml:"concurrent_crashmovers"`

	CrashStorageClass  string `yaml:"crashstorage_class"`
	CrashPublishClass  string `yaml:"crashpublish_class"`

	ListenAddr string `yaml:"listen_addr"`

	StoragePostgresDSN string `yaml:"storage_postgres_dsn"`
	StorageSQLitePath  string `yaml:"storage_sqlite_path"`
	StorageS3Endpoint  string `yaml:"storage_s3_endpoint"`
	StorageS3Bucket    string `yaml:"storage_s3_bucket"`
	StorageS3AccessKey string `yaml:"storage_s3_access_key"`
	StorageS3SecretKey string `yaml:"storage_s3_secret_key"`
	StorageS3Region    string `yaml:"storage_s3_region"`

	PublishWebhookURL   string `yaml:"publish_webhook_url"`
	PublishQueueBuffer  int    `yaml:"publish_queue_buffer"`

	QueueBuffer int `yaml:"queue_buffer"`
}

// Default returns the collector's built-in configuration defaults.
func Default() Config {
	return Config{
		DumpField:             "upload_file_minidump",
		DumpIDPrefix:          "bp-",
		ConcurrentCrashmovers: 2,
		CrashStorageClass:     "memory",
		CrashPublishClass:     "queue",
		ListenAddr:            ":8080",
		PublishQueueBuffer:    1000,
		QueueBuffer:           1000,
	}
}

// Load builds a Config starting from Default(), optionally overlaid by a
// YAML file at yamlPath (ignored if empty or missing), then overlaid by
// CRASHCOLLECTOR_*-prefixed environment variables.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(yamlPath) != "" {
		b, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)

	if cfg.ConcurrentCrashmovers < 1 {
		return Config{}, fmt.Errorf("config: concurrent_crashmovers must be >= 1, got %d", cfg.ConcurrentCrashmovers)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str(&cfg.DumpField, "DUMP_FIELD")
	str(&cfg.DumpIDPrefix, "DUMP_ID_PREFIX")
	integer(&cfg.ConcurrentCrashmovers, "CONCURRENT_CRASHMOVERS")
	str(&cfg.CrashStorageClass, "CRASHSTORAGE_CLASS")
	str(&cfg.CrashPublishClass, "CRASHPUBLISH_CLASS")
	str(&cfg.ListenAddr, "LISTEN_ADDR")

	str(&cfg.StoragePostgresDSN, "CRASHSTORAGE_POSTGRES_DSN")
	str(&cfg.StorageSQLitePath, "CRASHSTORAGE_SQLITE_PATH")
	str(&cfg.StorageS3Endpoint, "CRASHSTORAGE_S3_ENDPOINT")
	str(&cfg.StorageS3Bucket, "CRASHSTORAGE_S3_BUCKET")
	str(&cfg.StorageS3AccessKey, "CRASHSTORAGE_S3_ACCESS_KEY")
	str(&cfg.StorageS3SecretKey, "CRASHSTORAGE_S3_SECRET_KEY")
	str(&cfg.StorageS3Region, "CRASHSTORAGE_S3_REGION")

	str(&cfg.PublishWebhookURL, "CRASHPUBLISH_WEBHOOK_URL")
	integer(&cfg.PublishQueueBuffer, "CRASHPUBLISH_QUEUE_BUFFER")
	integer(&cfg.QueueBuffer, "QUEUE_BUFFER")
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func integer(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}
