package crashreport

import (
	"context"
	"time"

	"github.com/crashcollector/collector/internal/telemetry"
)

// Lifecycle exposes the process-lifecycle hooks for queue depth, liveness,
// and aggregated health, on top of a running Pipeline and its
// storage/publish collaborators.
type Lifecycle struct {
	Pipeline *Pipeline
	Storage  CrashStorage
	Publish  CrashPublish
	Metrics  telemetry.Metrics
}

func NewLifecycle(p *Pipeline, storage CrashStorage, publish CrashPublish, m telemetry.Metrics) *Lifecycle {
	return &Lifecycle{Pipeline: p, Storage: storage, Publish: publish, Metrics: m}
}

func (l *Lifecycle) QueueDepth() int        { return l.Pipeline.QueueDepth() }
func (l *Lifecycle) HasWorkToDo() bool      { return l.Pipeline.HasWorkToDo() }
func (l *Lifecycle) Join(ctx context.Context) error { return l.Pipeline.Join(ctx) }

// CheckHealth delegates to the storage and publisher capabilities and
// aggregates the result into state.
func (l *Lifecycle) CheckHealth(ctx context.Context, state *telemetry.HealthState) {
	state.Set("crashstorage", l.Storage.CheckHealth(ctx))
	state.Set("crashpublish", l.Publish.CheckHealth(ctx))
}

// RunHeartbeat reports QueueDepth as a gauge on every tick until ctx is
// canceled.
func (l *Lifecycle) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Metrics.Gauge("queue_depth", float64(l.QueueDepth()), nil)
		}
	}
}
