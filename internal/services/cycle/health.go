package cycle

import (
	"encoding/json"
	"net/http"
	"time"
)

// Probe reports whether an optional dependency is usable.
type Probe func() bool

// HealthHandler serves the last cycle outcome and dependency state.
// Status is ok when the last cycle completed, degraded when it aborted or a dependency
// is down, and starting before the first cycle.
type HealthHandler struct {
	runner *Runner
	probes map[string]Probe
	// stale marks the device degraded when no cycle finished for this long.
	stale time.Duration
}

func NewHealthHandler(r *Runner, stale time.Duration, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{runner: r, probes: probes, stale: stale}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status       string          `json:"status"`
		LastCycleID  string          `json:"last_cycle_id,omitempty"`
		LastStatus   string          `json:"last_status,omitempty"`
		LastStage    string          `json:"last_stage,omitempty"`
		LastError    string          `json:"last_error,omitempty"`
		LastCycleAge float64         `json:"last_cycle_age_sec,omitempty"`
		Dependencies map[string]bool `json:"dependencies,omitempty"`
	}

	st := status{Status: "ok"}
	last, at, ran := h.runner.Last()
	if !ran {
		st.Status = "starting"
	} else {
		st.LastCycleID = last.CycleID
		st.LastStatus = string(last.Status)
		st.LastStage = string(last.Stage)
		st.LastCycleAge = time.Since(at).Seconds()
		if last.Err != nil {
			st.LastError = last.Err.Error()
		}
		if last.Status != StatusCompleted || (h.stale > 0 && time.Since(at) > h.stale) {
			st.Status = "degraded"
		}
	}

	if len(h.probes) > 0 {
		st.Dependencies = make(map[string]bool, len(h.probes))
		for name, p := range h.probes {
			ok := p()
			st.Dependencies[name] = ok
			if !ok && st.Status == "ok" {
				st.Status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}
