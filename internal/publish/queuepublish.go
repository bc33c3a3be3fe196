package publish

import (
	"context"
	"fmt"

	"github.com/crashcollector/collector/internal/crashreport"
)

// QueuePublish is a CrashPublish that enqueues one envelope per accepted
// crash onto a Producer, for a downstream worker to consume.
type QueuePublish struct {
	Producer Producer
	Queue    string
}

func NewQueuePublish(producer Producer, queue string) *QueuePublish {
	if queue == "" {
		queue = "crash.accepted"
	}
	return &QueuePublish{Producer: producer, Queue: queue}
}

func (p *QueuePublish) Publish(ctx context.Context, submission *crashreport.CrashSubmission) error {
	payload, err := canonicalJSON(submission.Annotations)
	if err != nil {
		return fmt.Errorf("publish: marshal annotations: %w", err)
	}
	env := Envelope{
		ID:           submission.CrashID,
		Type:         "crash.accepted",
		DedupKey:     submission.CrashID,
		PayloadBytes: int64(len(payload)),
		Payload:      payload,
		Headers: map[string]string{
			"crash_id": submission.CrashID,
		},
	}
	return p.Producer.Enqueue(ctx, p.Queue, env)
}

func (p *QueuePublish) CheckHealth(context.Context) error {
	if p.Producer == nil {
		return fmt.Errorf("publish: no producer configured")
	}
	return nil
}
