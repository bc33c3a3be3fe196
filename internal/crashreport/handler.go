package crashreport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/crashcollector/collector/internal/telemetry"
)

// HandlerConfig holds the Submission Handler's stringly-typed-from-environment
// options.
type HandlerConfig struct {
	DumpField    string
	DumpIDPrefix string
}

// Handler implements POST /submit: it orchestrates the Parser, the
// Throttler, and the Identifier Mint, appends accepted work to the
// Pipeline's queue, and always writes an HTTP 200 response.
type Handler struct {
	Config    HandlerConfig
	Parser    *Parser
	Throttler Throttler
	Pipeline  *Pipeline
	Metrics   telemetry.Metrics
	Logger    *telemetry.Logger
	Now       func() time.Time
}

func NewHandler(cfg HandlerConfig, parser *Parser, throttler Throttler, pipeline *Pipeline, m telemetry.Metrics, l *telemetry.Logger) *Handler {
	return &Handler{
		Config:    cfg,
		Parser:    parser,
		Throttler: throttler,
		Pipeline:  pipeline,
		Metrics:   m,
		Logger:    l,
		Now:       time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	annotations, dumps, ok := h.Parser.Parse(r)
	if !ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Discarded=1"))
		return
	}

	h.Metrics.Incr("incoming_crash", nil)

	now := h.Now().UTC()
	annotations["submitted_timestamp"] = now.Format(time.RFC3339)
	annotations["timestamp"] = formatEpochSeconds(now)
	stampChecksums(annotations, dumps, h.Config.DumpField)

	result, ruleName, rate := h.Throttler.Throttle(r.Context(), annotations)
	annotations["legacy_processing"] = string(result)
	annotations["throttle_rate"] = fmt.Sprintf("%g", rate)
	h.Metrics.Incr("throttle", telemetry.Labels{"result": string(result), "rule": ruleName})

	crashID, ok := annotations["uuid"]
	if !ok || !ValidCrashID(crashID) {
		minted, err := NewCrashID(now, result)
		if err != nil {
			h.Metrics.Incr("crash_id_mint_failed", nil)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Discarded=1"))
			return
		}
		crashID = minted
		annotations["uuid"] = crashID
	}

	prefix := h.Config.DumpIDPrefix
	typeTag := trimDashes(prefix)
	annotations["type_tag"] = typeTag

	switch result {
	case ThrottleReject:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Discarded=1"))
		return
	case ThrottleFakeAccept:
		h.Logger.Info("crash_received", map[string]any{"crash_id": crashID, "fake_accept": true})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("CrashID=" + prefix + crashID + "\n"))
		return
	}

	submission := &CrashSubmission{
		Annotations: annotations,
		Dumps:       dumps,
		CrashID:     crashID,
		State:       StateSave,
	}
	h.Logger.Info("crash_received", map[string]any{"crash_id": crashID})

	if err := h.Pipeline.Enqueue(submission); err != nil {
		h.Metrics.Incr("queue_full", nil)
		h.Logger.Error("crash_enqueue_failed", map[string]any{"crash_id": crashID, "error": err.Error()})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Discarded=1"))
		return
	}
	h.Logger.Info("crash_accepted", map[string]any{"crash_id": crashID})

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("CrashID=" + prefix + crashID + "\n"))
}

// stampChecksums computes the SHA-256 checksum of every dump and records
// them in annotations["dump_checksums"]-equivalent form (flattened, since
// Annotations is a flat string map) plus the configured main dump field's
// checksum under MinidumpSha256Hash.
func stampChecksums(annotations Annotations, dumps Dumps, dumpField string) {
	minidumpChecksum := ""
	for name, data := range dumps {
		sum := sha256.Sum256(data)
		hexSum := hex.EncodeToString(sum[:])
		annotations["dump_checksums."+name] = hexSum
		if name == dumpField {
			minidumpChecksum = hexSum
		}
	}
	annotations["MinidumpSha256Hash"] = minidumpChecksum
}

func trimDashes(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == '-' {
		start++
	}
	for end > start && s[end-1] == '-' {
		end--
	}
	return s[start:end]
}
