package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/practice-robot/robot-bridge/internal"
	log "github.com/sirupsen/logrus"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck() error
}

// HealthManager tracks readiness of the upstream link. Liveness only
// depends on the process answering.
type HealthManager struct {
	ready int64
}

func NewHealthManager() *HealthManager {
	return &HealthManager{ready: 0}
}

// UpdateHealthStatus re-evaluates checker and updates the readiness metric.
func (h *HealthManager) UpdateHealthStatus(checker HealthChecker) {
	var status int64 = 1
	if err := checker.HealthCheck(); err != nil {
		status = 0
	}

	if prev := atomic.SwapInt64(&h.ready, status); prev != status {
		log.WithField("prefix", "HealthManager.UpdateHealthStatus").Infof("readiness changed to %d", status)
	}
	ReadyMetric.Set(float64(status))
}

// StartHealthMonitoring re-checks readiness every interval until ctx is done.
func (h *HealthManager) StartHealthMonitoring(ctx context.Context, checker HealthChecker, interval time.Duration) {
	h.UpdateHealthStatus(checker)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.UpdateHealthStatus(checker)
		}
	}
}

// HealthHandler answers liveness checks.
func (h *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// ReadyHandler answers 503 while no position stream is live.
func (h *HealthManager) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt64(&h.ready) == 0 {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.VersionRevision)
	w.WriteHeader(code)
	if _, err := fmt.Fprintf(w, `{"status":"%s"}`+"\n", status); err != nil {
		log.Errorf("health response write error: %v", err)
	}
}

// VersionHandler returns HTTP handler for version endpoint
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.VersionRevision)

	w.WriteHeader(http.StatusOK)
	response := fmt.Sprintf(`{"version":"%s"}`, internal.VersionRevision)
	_, err := fmt.Fprintf(w, "%s", response+"\n")
	if err != nil {
		log.Errorf("version response write error: %v", err)
	}
}
