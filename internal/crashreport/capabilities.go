package crashreport

import "context"

// CrashStorage is the durable persistence capability consumed by the
// Crashmover Pipeline. Implementations must be safe for
// concurrent use up to the pool's configured concurrency.
type CrashStorage interface {
	Save(ctx context.Context, submission *CrashSubmission) error
	CheckHealth(ctx context.Context) error
}

// CrashPublish announces a saved crash on a downstream channel.
type CrashPublish interface {
	Publish(ctx context.Context, submission *CrashSubmission) error
	CheckHealth(ctx context.Context) error
}
