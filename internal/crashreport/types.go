// Package crashreport implements the ingestion engine: payload parsing,
// crash id minting, the throttler facade, the submission handler, the
// crashmover pipeline, and the lifecycle hooks.
package crashreport

import "sync"

// State drives which side effect the Crashmover Pipeline performs next for a
// given submission.
type State string

const (
	StateSave    State = "save"
	StatePublish State = "publish"
)

// MaxAttempts is the per-state retry ceiling.
const MaxAttempts = 20

// ThrottleResult is the decision returned by a Throttler.
type ThrottleResult string

const (
	ThrottleAccept     ThrottleResult = "ACCEPT"
	ThrottleFakeAccept ThrottleResult = "FAKEACCEPT"
	ThrottleReject     ThrottleResult = "REJECT"
	ThrottleDefer      ThrottleResult = "DEFER"
)

// depth returns the numeric scheme embedded in a minted crash id's
// throttle-depth digit.
func (t ThrottleResult) depth() int {
	switch t {
	case ThrottleAccept:
		return 0
	case ThrottleDefer:
		return 1
	case ThrottleFakeAccept:
		return 2
	case ThrottleReject:
		return 3
	default:
		return 9
	}
}

// Annotations is the textual metadata of a crash submission.
type Annotations map[string]string

// Dumps maps a sanitized dump name to its raw bytes.
type Dumps map[string][]byte

// CrashSubmission is the unit of work moving through the pipeline.
//
// Once enqueued a submission is exclusively owned by whichever goroutine
// (the handler, or a single crashmover worker) currently holds it; it is
// never read or written concurrently by two goroutines at once.
type CrashSubmission struct {
	Annotations Annotations
	Dumps       Dumps
	CrashID     string
	State       State
	Errors      int

	mu sync.Mutex
}

// Transition moves the submission to a new state and resets its error
// counter.
func (c *CrashSubmission) Transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = to
	c.Errors = 0
}

// Fail increments the error counter for the current state and reports
// whether the submission should be dropped (errors reached MaxAttempts).
func (c *CrashSubmission) Fail() (dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors++
	return c.Errors >= MaxAttempts
}
