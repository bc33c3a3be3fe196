// Package publish provides CrashPublish implementations: notifying a
// downstream system once a crash has been durably saved.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Envelope is the unit of transport through the in-process queue.
// At-least-once delivery: consumers must Ack or Nack; unacked envelopes
// become visible again after their lease expires. Exactly-once is not
// provided — DedupKey exists for business-level deduplication by consumers.
type Envelope struct {
	Queue              string
	ID                 string
	Type               string
	ProducedAt         time.Time
	Attempt            int
	VisibilityDeadline time.Time
	DedupKey           string
	Headers            map[string]string
	PayloadBytes       int64
	Payload            []byte
}

const (
	MaxHeaderPairs  = 64
	MaxHeaderKeyLen = 64
	MaxHeaderValLen = 256

	DefaultMaxPayloadBytes = 4 * 1024 * 1024
)

var (
	ErrEmpty    = errors.New("publish: queue empty")
	ErrClosed   = errors.New("publish: queue closed")
	ErrOversize = errors.New("publish: envelope oversize")
	ErrInvalid  = errors.New("publish: envelope invalid")
)

// Producer publishes envelopes onto a named queue.
type Producer interface {
	Enqueue(ctx context.Context, queue string, env Envelope) error
}

// Consumer leases envelopes for processing. Not used by the collector
// itself (the collector is producer-only), but kept so a downstream
// worker can drain the same queue implementation.
type Consumer interface {
	Dequeue(ctx context.Context, queue string, pollTimeout time.Duration) (Envelope, string, error)
	Ack(ctx context.Context, queue string, receipt string) error
	Nack(ctx context.Context, queue string, receipt string, delay time.Duration) error
}

// NormalizeEnvelope trims strings, lowercases and bounds headers, and
// validates size limits before an envelope is accepted onto the queue.
func NormalizeEnvelope(env Envelope) (Envelope, error) {
	env.Type = strings.TrimSpace(env.Type)
	env.DedupKey = strings.TrimSpace(env.DedupKey)

	if env.Attempt < 0 {
		return Envelope{}, fmt.Errorf("%w: attempt cannot be negative", ErrInvalid)
	}
	if env.PayloadBytes < 0 {
		return Envelope{}, fmt.Errorf("%w: payload_bytes cannot be negative", ErrInvalid)
	}
	if env.PayloadBytes == 0 && len(env.Payload) > 0 {
		env.PayloadBytes = int64(len(env.Payload))
	}

	if env.Headers != nil {
		clean := make(map[string]string, len(env.Headers))
		keys := make([]string, 0, len(env.Headers))
		for k := range env.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			k2 := strings.ToLower(strings.TrimSpace(k))
			if k2 == "" || len(k2) > MaxHeaderKeyLen {
				continue
			}
			v := strings.TrimSpace(env.Headers[k])
			if len(v) > MaxHeaderValLen {
				v = v[:MaxHeaderValLen]
			}
			clean[k2] = v
			if len(clean) >= MaxHeaderPairs {
				break
			}
		}
		if len(clean) == 0 {
			env.Headers = nil
		} else {
			env.Headers = clean
		}
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrInvalid)
	}
	if len(env.Type) > 128 {
		return Envelope{}, fmt.Errorf("%w: type too long", ErrInvalid)
	}
	if env.DedupKey != "" && len(env.DedupKey) > 256 {
		return Envelope{}, fmt.Errorf("%w: dedup_key too long", ErrInvalid)
	}
	if env.PayloadBytes > int64(DefaultMaxPayloadBytes) {
		return Envelope{}, fmt.Errorf("%w: payload_bytes exceeds max (%d)", ErrOversize, DefaultMaxPayloadBytes)
	}
	if len(env.Payload) > 0 && int64(len(env.Payload)) != env.PayloadBytes {
		return Envelope{}, fmt.Errorf("%w: payload_bytes mismatch (declared=%d actual=%d)", ErrInvalid, env.PayloadBytes, len(env.Payload))
	}
	return env, nil
}

// StableEnvelopeHash returns a deterministic sha256 over envelope
// metadata and payload, useful for audit trails.
func StableEnvelopeHash(env Envelope) (string, error) {
	n, err := NormalizeEnvelope(env)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(n.Queue)
	write(n.ID)
	write(n.Type)
	write(n.DedupKey)
	write(fmt.Sprintf("%d", n.Attempt))
	write(fmt.Sprintf("%d", n.PayloadBytes))
	if n.Headers != nil {
		keys := make([]string, 0, len(n.Headers))
		for k := range n.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write("h:" + k)
			write(n.Headers[k])
		}
	}
	if len(n.Payload) > 0 {
		_, _ = h.Write(n.Payload)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
