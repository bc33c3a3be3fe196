package crashreport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crashcollector/collector/internal/telemetry"
)

// ErrQueueFull is returned by Enqueue when the pipeline's queue has no free
// capacity. The Submission Handler answers such a request with Discarded=1
// and counts it under queue_full; the submission is not retried.
var ErrQueueFull = fmt.Errorf("crashreport: queue full")

// Pipeline is the Crashmover Pipeline: a bounded pool of worker goroutines
// draining a shared FIFO queue, driving each submission through SAVE then
// PUBLISH with per-state bounded retry.
//
// The queue is a buffered Go channel; appends (by the handler or by a
// worker re-enqueueing) are sends, pops (by a worker) are receives. Workers
// are a fixed set of permanent goroutines blocking on the channel.
type Pipeline struct {
	Storage  CrashStorage
	Publish  CrashPublish
	Metrics  telemetry.Metrics
	Logger   *telemetry.Logger
	Clock    func() time.Time

	queue chan *CrashSubmission

	inFlight atomic.Int64

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPipeline builds a Pipeline with the given queue buffer size. Workers
// are started by Start.
func NewPipeline(storage CrashStorage, publish CrashPublish, m telemetry.Metrics, l *telemetry.Logger, queueBuffer int) *Pipeline {
	if queueBuffer < 1 {
		queueBuffer = 1
	}
	return &Pipeline{
		Storage: storage,
		Publish: publish,
		Metrics: m,
		Logger:  l,
		Clock:   time.Now,
		queue:   make(chan *CrashSubmission, queueBuffer),
	}
}

// Start launches concurrency worker goroutines. It is idempotent; a second
// call is a no-op.
func (p *Pipeline) Start(ctx context.Context, concurrency int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	if concurrency < 1 {
		concurrency = 1
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(workerCtx, i)
	}
	_ = ctx
}

// Enqueue appends a submission to the tail of the queue without blocking.
// Returns ErrQueueFull if the queue has no free capacity.
func (p *Pipeline) Enqueue(submission *CrashSubmission) error {
	select {
	case p.queue <- submission:
		return nil
	default:
		return ErrQueueFull
	}
}

// requeue re-appends a submission that is already inside the pipeline (a
// retry, or a SAVE-to-PUBLISH transition). Unlike Enqueue this may block
// briefly under backpressure, since it runs inside a worker goroutine, not
// the HTTP handler.
func (p *Pipeline) requeue(ctx context.Context, submission *CrashSubmission) {
	select {
	case p.queue <- submission:
	case <-ctx.Done():
	}
}

// QueueDepth returns the number of submissions currently waiting in the
// queue (not counting ones a worker currently holds).
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// HasWorkToDo reports whether the queue is non-empty or any worker is
// actively processing a submission.
func (p *Pipeline) HasWorkToDo() bool {
	return p.QueueDepth() > 0 || p.inFlight.Load() > 0
}

// Stop cancels all workers and waits (bounded by ctx) for each to return.
// Submissions still in the queue are not processed; callers that want the
// queue drained first wait for HasWorkToDo to report false (see Join)
// before calling Stop.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join blocks until the pool is idle or ctx is done. Tests use it to wait
// for processing; the collector uses it to drain the queue on shutdown.
func (p *Pipeline) Join(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !p.HasWorkToDo() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case submission, ok := <-p.queue:
			if !ok {
				return
			}
			p.inFlight.Add(1)
			p.processOne(ctx, submission)
			p.inFlight.Add(-1)
		}
	}
}

// processOne runs one state-transition attempt for submission. No panic or
// error from a backend ever escapes this function.
func (p *Pipeline) processOne(ctx context.Context, submission *CrashSubmission) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("crashmover_panic_recovered", map[string]any{
				"crash_id": submission.CrashID,
				"state":    string(submission.State),
				"panic":    fmt.Sprintf("%v", r),
			})
			p.onAttemptFailed(ctx, submission)
		}
	}()

	switch submission.State {
	case StateSave:
		p.attempt(ctx, submission, "save", p.Storage.Save, func() {
			submission.Transition(StatePublish)
			p.requeue(ctx, submission)
		})
	case StatePublish:
		p.attempt(ctx, submission, "publish", p.Publish.Publish, func() {
			p.finish(submission)
		})
	}
}

func (p *Pipeline) attempt(ctx context.Context, submission *CrashSubmission, stateName string, fn func(context.Context, *CrashSubmission) error, onSuccess func()) {
	err := fn(ctx, submission)
	if err == nil {
		p.Metrics.Incr(stateName+"_crash_ok", nil)
		onSuccess()
		return
	}
	p.Metrics.Incr(stateName+"_crash_exception", nil)
	p.Logger.Warn("crashmover_attempt_failed", map[string]any{
		"crash_id": submission.CrashID,
		"state":    stateName,
		"errors":   submission.Errors,
		"error":    err.Error(),
	})
	p.onAttemptFailed(ctx, submission)
}

func (p *Pipeline) onAttemptFailed(ctx context.Context, submission *CrashSubmission) {
	if submission.Fail() {
		p.Metrics.Incr(string(submission.State)+"_crash_dropped", nil)
		p.Logger.Error("crashmover_dropped", map[string]any{
			"crash_id": submission.CrashID,
			"state":    string(submission.State),
			"errors":   strconv.Itoa(submission.Errors),
		})
		return
	}
	p.requeue(ctx, submission)
}

func (p *Pipeline) finish(submission *CrashSubmission) {
	if ts, ok := submission.Annotations["timestamp"]; ok {
		if startSecs, err := parseFloatSeconds(ts); err == nil {
			deltaMS := (float64(p.Clock().UnixNano())/1e9 - startSecs) * 1000
			p.Metrics.Timing("crash_handling_time", time.Duration(deltaMS)*time.Millisecond, nil)
		}
	}
	p.Metrics.Incr("save_crash_count", nil)
	p.Logger.Info("crash_published", map[string]any{"crash_id": submission.CrashID})
}
