package crashreport

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strings"
)

// Throttler is the external admission-policy capability consumed by the
// Submission Handler. The rule set itself is external to the core; this
// repository ships one small reference implementation.
type Throttler interface {
	Throttle(ctx context.Context, annotations Annotations) (result ThrottleResult, ruleName string, rate float64)
}

// PercentageThrottler is a deterministic reference Throttler: it rejects a
// submission whose product name is on a configured deny list; everything
// else is accepted at a configurable sampling rate and deferred otherwise,
// deterministically hashed from the crash's annotations so repeated test
// runs are reproducible.
type PercentageThrottler struct {
	// DenyProductNames rejects any submission whose "ProductName"
	// annotation matches, case-insensitively.
	DenyProductNames map[string]bool
	// AcceptRate is in [0, 1]; submissions not accepted by it are DEFERred.
	AcceptRate float64
}

func NewPercentageThrottler(acceptRate float64, denyProductNames ...string) *PercentageThrottler {
	deny := make(map[string]bool, len(denyProductNames))
	for _, n := range denyProductNames {
		deny[strings.ToLower(n)] = true
	}
	if acceptRate < 0 {
		acceptRate = 0
	}
	if acceptRate > 1 {
		acceptRate = 1
	}
	return &PercentageThrottler{DenyProductNames: deny, AcceptRate: acceptRate}
}

func (t *PercentageThrottler) Throttle(_ context.Context, annotations Annotations) (ThrottleResult, string, float64) {
	product := strings.ToLower(annotations["ProductName"])
	if product != "" && t.DenyProductNames[product] {
		return ThrottleReject, "deny_product_name", 0
	}
	if t.AcceptRate >= 1 {
		return ThrottleAccept, "accept_all", 1
	}
	if deterministicFraction(annotations) < t.AcceptRate {
		return ThrottleAccept, "percentage", t.AcceptRate
	}
	return ThrottleDefer, "percentage", t.AcceptRate
}

// deterministicFraction hashes a submission's annotations into a stable
// value in [0, 1] (1 only through float rounding), so the same input always yields the same throttle
// decision without a source of randomness in the hot path.
func deterministicFraction(annotations Annotations) float64 {
	h := sha256.New()
	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte(annotations[k]))
	}
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(1<<64-1)
}
