package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/crashcollector/collector/internal/crashreport"
	"github.com/crashcollector/collector/internal/errtax"
	"github.com/crashcollector/collector/internal/telemetry"
)

// Version is stamped at build time; local runs report the default "dev".
var Version = "dev"

func newRouter(handler *crashreport.Handler, lifecycle *crashreport.Lifecycle, health *telemetry.HealthState, logger *telemetry.Logger, admin *adminStream) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/submit", handler).Methods(http.MethodPost)
	r.HandleFunc("/__version__", handleVersion(loadVersionInfo("version.json"))).Methods(http.MethodGet)
	r.HandleFunc("/__lbheartbeat__", handleLBHeartbeat).Methods(http.MethodGet)
	r.HandleFunc("/__heartbeat__", handleHeartbeat(lifecycle, health)).Methods(http.MethodGet)
	r.HandleFunc("/admin/stream", admin.ServeWS)

	return withRequestLogging(logger, r)
}

// loadVersionInfo reads an optional build-info file written by CI at image
// build time. Its absence is not an error: local runs and `go run` simply
// report only the default Version.
func loadVersionInfo(path string) map[string]any {
	info := map[string]any{}
	b, err := os.ReadFile(path)
	if err != nil {
		return info
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return map[string]any{}
	}
	return info
}

func handleVersion(info map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"version": Version}
		for k, v := range info {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func handleLBHeartbeat(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func handleHeartbeat(lifecycle *crashreport.Lifecycle, health *telemetry.HealthState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lifecycle.CheckHealth(r.Context(), health)
		components, healthy := health.Snapshot()
		status := http.StatusOK
		errorCode := ""
		if !healthy {
			meta, _ := errtax.Lookup(errtax.CrashStorageUnavailable)
			status = meta.HTTPStatus
			errorCode = string(errtax.CrashStorageUnavailable)
		}
		body := map[string]any{
			"components":  components,
			"queue_depth": lifecycle.QueueDepth(),
		}
		if errorCode != "" {
			body["error_code"] = errorCode
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestLogging(logger *telemetry.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// adminStream pushes a heartbeat and queue-depth snapshot to any connected
// admin dashboard over a websocket, mirroring the SSE catalog/results push
// the rest of the reference stack uses for its own admin views.
type adminStream struct {
	lifecycle *crashreport.Lifecycle
	logger    *telemetry.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newAdminStream(lifecycle *crashreport.Lifecycle, logger *telemetry.Logger) *adminStream {
	return &adminStream{
		lifecycle: lifecycle,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (a *adminStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("admin_stream_upgrade_failed", map[string]any{"err": err.Error()})
		return
	}
	a.mu.Lock()
	a.clients[conn] = struct{}{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.clients, conn)
		a.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain reads so control frames (ping/close) are processed; the
	// admin dashboard is read-only from this end.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// Run periodically pushes a snapshot to every connected client until stop
// is closed.
func (a *adminStream) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.broadcast(map[string]any{
				"ts":          time.Now().UTC().Format(time.RFC3339),
				"queue_depth": a.lifecycle.QueueDepth(),
				"has_work":    a.lifecycle.HasWorkToDo(),
			})
		case <-stop:
			return
		}
	}
}

func (a *adminStream) broadcast(v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for conn := range a.clients {
		if err := conn.WriteJSON(v); err != nil {
			_ = conn.Close()
			delete(a.clients, conn)
		}
	}
}

func parseListenAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("admin: empty listen address")
	}
	if !strings.Contains(addr, ":") {
		return "", fmt.Errorf("admin: listen address %q missing port", addr)
	}
	return addr, nil
}

func mustHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
