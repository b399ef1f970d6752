// Package health exposes the driver's readiness over HTTP. Grounded on the
// original's health.rs HealthReporting trait (notify_ready, flipping a shared
// boolean the scheduler calls into once the first batch transition completes),
// referenced from services-core/src/driver/scheduler/evm.rs.
package health

import (
	"net/http"
	"sync/atomic"
)

// Reporter tracks whether the driver has completed at least one successful batch
// transition. It starts not-ready and is flipped exactly once.
type Reporter struct {
	ready atomic.Bool
}

// NewReporter constructs a not-ready Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// NotifyReady flips the reporter to ready. Safe to call more than once or
// concurrently; only the first call has any effect.
func (r *Reporter) NotifyReady() {
	r.ready.Store(true)
}

// IsReady reports the current readiness state.
func (r *Reporter) IsReady() bool {
	return r.ready.Load()
}

// Handler serves the reporter's state on every request path: 200 once ready, 503
// until then. cmd/driver/main.go runs it as the whole handler of the health server,
// a separate server from the metrics endpoint.
func (r *Reporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.IsReady() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
