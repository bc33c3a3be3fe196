package main

import (
	"context"
	"fmt"
	"time"

	"github.com/crashcollector/collector/internal/config"
	"github.com/crashcollector/collector/internal/crashreport"
	"github.com/crashcollector/collector/internal/publish"
	"github.com/crashcollector/collector/internal/storage"
)

// storageBuilders resolves crashstorage_class by name, never by reflection,
// mirroring the "plugin-by-name" design named for backend selection.
var storageBuilders = map[string]func(ctx context.Context, cfg config.Config) (crashreport.CrashStorage, error){
	"memory": func(context.Context, config.Config) (crashreport.CrashStorage, error) {
		return storage.NewMemory(), nil
	},
	"postgresql": func(ctx context.Context, cfg config.Config) (crashreport.CrashStorage, error) {
		return storage.NewPostgres(ctx, cfg.StoragePostgresDSN, time.Now)
	},
	"sqlite": func(ctx context.Context, cfg config.Config) (crashreport.CrashStorage, error) {
		return storage.NewSQLite(ctx, cfg.StorageSQLitePath, time.Now)
	},
	"s3": func(_ context.Context, cfg config.Config) (crashreport.CrashStorage, error) {
		return storage.NewS3(storage.S3Options{
			Endpoint:  cfg.StorageS3Endpoint,
			Bucket:    cfg.StorageS3Bucket,
			AccessKey: cfg.StorageS3AccessKey,
			SecretKey: cfg.StorageS3SecretKey,
			Region:    cfg.StorageS3Region,
		})
	},
}

var publishBuilders = map[string]func(ctx context.Context, cfg config.Config) (crashreport.CrashPublish, error){
	"queue": func(context.Context, config.Config) (crashreport.CrashPublish, error) {
		q := publish.NewInMemoryQueue()
		return publish.NewQueuePublish(q, "crash.accepted"), nil
	},
	"webhook": func(_ context.Context, cfg config.Config) (crashreport.CrashPublish, error) {
		if cfg.PublishWebhookURL == "" {
			return nil, fmt.Errorf("registry: crashpublish_webhook_url required for webhook publisher")
		}
		return publish.NewWebhook(cfg.PublishWebhookURL), nil
	},
}

func buildStorage(ctx context.Context, cfg config.Config) (crashreport.CrashStorage, error) {
	build, ok := storageBuilders[cfg.CrashStorageClass]
	if !ok {
		return nil, fmt.Errorf("registry: unknown crashstorage_class %q", cfg.CrashStorageClass)
	}
	return build(ctx, cfg)
}

func buildPublish(ctx context.Context, cfg config.Config) (crashreport.CrashPublish, error) {
	build, ok := publishBuilders[cfg.CrashPublishClass]
	if !ok {
		return nil, fmt.Errorf("registry: unknown crashpublish_class %q", cfg.CrashPublishClass)
	}
	return build(ctx, cfg)
}
